package catalog

import (
	"strconv"
	"strings"

	"banner-studio/internal/design"
)

type NamedOption struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// designStyles are iterated in order when several variations are requested.
var designStyles = []string{
	"Modern Minimalist",
	"Bold & Vibrant",
	"Luxury & Elegant",
	"Neo-Brutalism",
	"Corporate Professional",
	"Abstract Artistic",
	"Tech & Futuristic",
}

var headingStyles = []string{
	"Modern Sans-Serif",
	"Elegant Serif",
	"Bold Display",
	"Handwritten Script",
	"Minimalist Thin",
	"Tech / Futuristic",
	"Vintage Classic",
}

var aspectLabels = map[design.AspectRatio]string{
	design.AspectSquare:      "Square (1:1) - Instagram / post",
	design.AspectLandscape:   "Landscape (16:9) - YouTube / web",
	design.AspectSocialCover: "Social cover (2048x779)",
	design.AspectPortrait:    "Portrait (9:16) - stories / short video",
	design.AspectStandard:    "Standard (4:3) - presentations",
	design.AspectVertical:    "Vertical (4:5) - feed",
}

const DefaultHeadingStyle = "Modern Sans-Serif"

func DesignStyles() []string {
	out := make([]string, len(designStyles))
	copy(out, designStyles)
	return out
}

func HeadingStyles() []string {
	out := make([]string, len(headingStyles))
	copy(out, headingStyles)
	return out
}

// StylesFor picks the styles used for n variations: the first n, at least one.
func StylesFor(n int) []string {
	if n < 1 {
		n = 1
	}
	if n > len(designStyles) {
		n = len(designStyles)
	}
	return DesignStyles()[:n]
}

func AspectLabel(a design.AspectRatio) string {
	if label, ok := aspectLabels[a]; ok {
		return label
	}
	return string(a)
}

func AspectRatios() []NamedOption {
	ratios := design.AspectRatios()
	out := make([]NamedOption, 0, len(ratios))
	for _, a := range ratios {
		out = append(out, NamedOption{Key: string(a), Name: AspectLabel(a)})
	}
	return out
}

// HeadingStyle resolves a 1-based index or a style name.
func HeadingStyle(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if idx, err := strconv.Atoi(value); err == nil {
		if idx >= 1 && idx <= len(headingStyles) {
			return headingStyles[idx-1], true
		}
		return "", false
	}
	for _, s := range headingStyles {
		if strings.EqualFold(value, s) {
			return s, true
		}
	}
	return "", false
}
