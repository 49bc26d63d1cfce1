package design

import (
	"fmt"
	"strings"
)

const (
	referenceLabel = "IMAGE TYPE: REFERENCE (use for layout/style inspiration)"
	productLabel   = "IMAGE TYPE: PRODUCT ASSET (must be featured in design)"
)

// Cover canvas geometry. The safe zone is centered horizontally inside the active area.
const (
	CoverActiveWidth  = 2048
	CoverActiveHeight = 779
	CoverSafeWidth    = 1325
	CoverSafeHeight   = 779
)

const (
	ImageSizeStandard = "1K"
	ImageSizeHigh     = "2K"
)

const (
	harmBlockOnlyHigh = "BLOCK_ONLY_HIGH"
)

var socialCoverInstructions = fmt.Sprintf(`
STRICT OUTPUT REQUIREMENT: SOCIAL COVER DESIGN.

TECHNICAL INSTRUCTION:
The generation canvas is fixed at 16:9. Build the layout CENTERED inside this 16:9 frame.
1. Active design area: equivalent to %[1]dx%[2]d pixels (approx 2.6:1).
2. Background extension: fill the remaining vertical space of the 16:9 canvas with extended background or gradient so it can be cropped without white bars.

DESIGN PROMPT:
Design a cover photo that works on both desktop (%[1]d x %[2]d px) and mobile devices.
Keep every key element (text, logo, face, product) strictly centered inside the safe zone of %[3]d x %[4]d pixels.
Anything outside the center %[3]dpx width may be cropped on mobile.
Use a vibrant, professional background. Keep the text legible with the key message prominent in the center. Place the logo subtly at the top or bottom without covering the main content. The result must look balanced on desktop and mobile.
`, CoverActiveWidth, CoverActiveHeight, CoverSafeWidth, CoverSafeHeight)

// SocialCoverInstructions returns the fixed safe-zone block appended for cover layouts.
func SocialCoverInstructions() string {
	return socialCoverInstructions
}

func generateSafety() []SafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	out := make([]SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, SafetySetting{Category: c, Threshold: harmBlockOnlyHigh})
	}
	return out
}

// imageConfig resolves the emitted aspect ratio and resolution hint for a tier.
func imageConfig(ratio AspectRatio, tier Tier) (ImageConfig, bool) {
	cfg := ImageConfig{AspectRatio: string(ratio)}
	cover := ratio == AspectSocialCover
	if cover {
		cfg.AspectRatio = string(AspectLandscape)
	}
	if tier == TierPrimary {
		cfg.ImageSize = ImageSizeStandard
		if cover {
			cfg.ImageSize = ImageSizeHigh
		}
	}
	return cfg, cover
}

// BuildGenerateRequest turns a brief into the request for one attempt on tier.
func BuildGenerateRequest(brief Brief, style string, tier Tier) Request {
	var parts []Part

	if len(brief.References) > 0 {
		for _, a := range brief.References {
			parts = append(parts, InlinePart(a))
		}
		parts = append(parts, TextPart(referenceLabel))
	}

	if len(brief.Products) > 0 {
		for _, a := range brief.Products {
			parts = append(parts, InlinePart(a))
		}
		parts = append(parts, TextPart(productLabel))
	}

	cfg, cover := imageConfig(brief.AspectRatio, tier)
	extra := ""
	if cover {
		extra = socialCoverInstructions
	}

	parts = append(parts, TextPart(composeInstruction(brief, style, extra)))

	return Request{
		Parts:  parts,
		Image:  cfg,
		Safety: generateSafety(),
	}
}

func composeInstruction(brief Brief, style, extra string) string {
	var b strings.Builder
	b.WriteString("STRICT COMMERCIAL DESIGN TASK.\n")
	fmt.Fprintf(&b, "Design style: %s. Use %s typography.\n\n", style, brief.HeadlineStyle)
	fmt.Fprintf(&b, "Requirements: %s.\n", brief.Description)
	fmt.Fprintf(&b, "Product notes: %s.\n\n", brief.ProductNotes)
	b.WriteString("TEXT OVERLAYS (render exactly as written):\n")
	fmt.Fprintf(&b, "- Headline: \"%s\"\n", brief.Headline)
	fmt.Fprintf(&b, "- Subheadline: \"%s\"\n", brief.Subheadline)
	if extra != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(extra))
		b.WriteString("\n")
	}
	b.WriteString("\nFinal instruction: output only the generated image.")
	return b.String()
}

// BuildEditRequest turns a prior image and an instruction into the request for tier.
func BuildEditRequest(image Asset, instruction string, ratio AspectRatio, tier Tier) Request {
	if image.MIMEType == "" {
		image.MIMEType = "image/png"
	}

	cfg, cover := imageConfig(ratio, tier)
	extra := ""
	if cover {
		extra = "Maintain the social cover layout. " + strings.TrimSpace(socialCoverInstructions)
	}

	text := fmt.Sprintf("EDIT IMAGE: %s. %s GENERATE EDITED IMAGE NOW.", strings.TrimSpace(instruction), extra)

	return Request{
		Parts: []Part{InlinePart(image), TextPart(text)},
		Image: cfg,
	}
}
