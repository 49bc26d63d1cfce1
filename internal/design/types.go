package design

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type AspectRatio string

const (
	AspectSquare      AspectRatio = "1:1"
	AspectLandscape   AspectRatio = "16:9"
	AspectSocialCover AspectRatio = "16:9_cover"
	AspectPortrait    AspectRatio = "9:16"
	AspectStandard    AspectRatio = "4:3"
	AspectVertical    AspectRatio = "4:5"
)

var aspectAliases = map[string]AspectRatio{
	"square":       AspectSquare,
	"landscape":    AspectLandscape,
	"cover":        AspectSocialCover,
	"social-cover": AspectSocialCover,
	"portrait":     AspectPortrait,
	"standard":     AspectStandard,
	"vertical":     AspectVertical,
}

// AspectRatios lists the presets in display order.
func AspectRatios() []AspectRatio {
	return []AspectRatio{
		AspectSquare,
		AspectLandscape,
		AspectSocialCover,
		AspectPortrait,
		AspectStandard,
		AspectVertical,
	}
}

// ParseAspectRatio accepts either a preset value ("16:9") or its name ("landscape").
func ParseAspectRatio(value string) (AspectRatio, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return "", errors.New("aspect ratio is empty")
	}
	if a, ok := aspectAliases[v]; ok {
		return a, nil
	}
	for _, a := range AspectRatios() {
		if string(a) == v {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown aspect ratio %q", value)
}

func (a AspectRatio) Valid() bool {
	for _, known := range AspectRatios() {
		if a == known {
			return true
		}
	}
	return false
}

// Asset is an image payload attached to a request.
type Asset struct {
	Name     string
	MIMEType string
	Data     []byte
}

var dataURLRegex = regexp.MustCompile(`^data:([^;,]+)(;base64)?,`)

// AssetFromDataURL accepts "data:<mime>;base64,<payload>" or a bare base64 payload.
func AssetFromDataURL(value string) (Asset, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Asset{}, errors.New("empty data url")
	}

	mime := "image/png"
	payload := value
	if matches := dataURLRegex.FindStringSubmatch(value); len(matches) == 3 {
		mime = matches[1]
		payload = value[len(matches[0]):]
	} else if idx := strings.IndexByte(value, ','); idx >= 0 {
		payload = value[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Asset{}, fmt.Errorf("decode base64: %w", err)
	}
	if len(data) == 0 {
		return Asset{}, errors.New("empty image payload")
	}
	return Asset{MIMEType: mime, Data: data}, nil
}

// DataURL renders the asset as an inline data URL.
func (a Asset) DataURL() string {
	mime := a.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(a.Data))
}

const (
	MinVariations = 1
	MaxVariations = 5
)

// Brief is the user-authored input for one generation run.
type Brief struct {
	AspectRatio   AspectRatio
	Description   string
	References    []Asset
	Products      []Asset
	ProductNotes  string
	Headline      string
	HeadlineStyle string
	Subheadline   string
	Variations    int
}

func (b Brief) Validate() error {
	if b.Variations < MinVariations || b.Variations > MaxVariations {
		return fmt.Errorf("variations must be between %d and %d, got %d", MinVariations, MaxVariations, b.Variations)
	}
	return b.validateContent()
}

// validateContent checks what a single generate call sends: the ratio and
// the attached images.
func (b Brief) validateContent() error {
	if !b.AspectRatio.Valid() {
		return fmt.Errorf("unknown aspect ratio %q", b.AspectRatio)
	}
	for i, a := range b.References {
		if len(a.Data) == 0 {
			return fmt.Errorf("reference image %d is empty", i+1)
		}
	}
	for i, a := range b.Products {
		if len(a.Data) == 0 {
			return fmt.Errorf("product image %d is empty", i+1)
		}
	}
	return nil
}

type Tier int

const (
	TierPrimary Tier = iota
	TierFallback
)

func (t Tier) String() string {
	if t == TierFallback {
		return "fallback"
	}
	return "primary"
}

const (
	DefaultPrimaryModel  = "gemini-3-pro-image-preview"
	DefaultFallbackModel = "gemini-2.5-flash-image"
)

// Models maps each tier to a concrete model id.
type Models struct {
	Primary  string
	Fallback string
}

func (m Models) For(t Tier) string {
	if t == TierFallback {
		if m.Fallback == "" {
			return DefaultFallbackModel
		}
		return m.Fallback
	}
	if m.Primary == "" {
		return DefaultPrimaryModel
	}
	return m.Primary
}

// Part is either a text segment or an inline asset.
type Part struct {
	Text   string
	Inline *Asset
}

func TextPart(text string) Part { return Part{Text: text} }

func InlinePart(a Asset) Part {
	asset := a
	return Part{Inline: &asset}
}

type ImageConfig struct {
	AspectRatio string
	// ImageSize is empty when the tier does not take a resolution hint.
	ImageSize string
}

type SafetySetting struct {
	Category  string
	Threshold string
}

// Request is the provider-agnostic payload for a single attempt.
type Request struct {
	Parts  []Part
	Image  ImageConfig
	Safety []SafetySetting
}

// Call is what a Provider receives for one attempt.
type Call struct {
	APIKey  string
	Model   string
	Request Request
}

const FinishReasonSafety = "SAFETY"

type Candidate struct {
	FinishReason string
	Parts        []Part
}

type Response struct {
	Candidates []Candidate
}

// Result is a generated image handed back to the caller.
type Result struct {
	DataURL  string
	MIMEType string
	Model    string
	Tier     Tier
	Style    string
}

func (r Result) Bytes() ([]byte, error) {
	a, err := AssetFromDataURL(r.DataURL)
	if err != nil {
		return nil, err
	}
	return a.Data, nil
}

func (r Result) Asset() (Asset, error) {
	return AssetFromDataURL(r.DataURL)
}

const editedSuffix = " (edited)"

// EditedStyle labels the result of an edit. Repeated edits keep one marker.
func EditedStyle(style string) string {
	if strings.HasSuffix(style, editedSuffix) {
		return style
	}
	return style + editedSuffix
}
