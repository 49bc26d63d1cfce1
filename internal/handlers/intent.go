package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"banner-studio/internal/catalog"
	"banner-studio/internal/design"
	"banner-studio/internal/session"
)

// roleFromCaption treats photos captioned "ref", "reference" or "style" as
// layout references. Everything else is a product asset.
func roleFromCaption(caption string) session.Role {
	c := strings.ToLower(strings.TrimSpace(caption))
	if c == "" {
		return session.RoleProduct
	}

	first := strings.FieldsFunc(c, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':' || r == '\n'
	})
	if len(first) > 0 {
		switch first[0] {
		case "ref", "refs", "reference", "references", "style", "inspiration":
			return session.RoleReference
		}
	}
	if strings.Contains(c, "reference") {
		return session.RoleReference
	}
	return session.RoleProduct
}

// parseEditArgs splits "/edit <n> <instruction>".
func parseEditArgs(args string) (int, string, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, "", errors.New("usage: /edit <number> <instruction>")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(fields[0], "#"))
	if err != nil || n < 1 {
		return 0, "", fmt.Errorf("%q is not a design number", fields[0])
	}
	instruction := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), fields[0]))
	return n, instruction, nil
}

func parseCount(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < design.MinVariations || n > design.MaxVariations {
		return 0, fmt.Errorf("pick a number from %d to %d", design.MinVariations, design.MaxVariations)
	}
	return n, nil
}

func hasContent(b design.Brief) bool {
	return strings.TrimSpace(b.Description) != "" ||
		strings.TrimSpace(b.Headline) != "" ||
		len(b.Products) > 0 ||
		len(b.References) > 0
}

func briefSummary(b design.Brief) string {
	orDash := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	}

	var sb strings.Builder
	sb.WriteString("Current brief\n\n")
	fmt.Fprintf(&sb, "Aspect ratio: %s\n", catalog.AspectLabel(b.AspectRatio))
	fmt.Fprintf(&sb, "Description: %s\n", orDash(b.Description))
	fmt.Fprintf(&sb, "Product notes: %s\n", orDash(b.ProductNotes))
	fmt.Fprintf(&sb, "Headline: %s\n", orDash(b.Headline))
	fmt.Fprintf(&sb, "Subheadline: %s\n", orDash(b.Subheadline))
	fmt.Fprintf(&sb, "Typography: %s\n", orDash(b.HeadlineStyle))
	fmt.Fprintf(&sb, "Variations: %d (%s)\n", b.Variations, strings.Join(catalog.StylesFor(b.Variations), ", "))
	fmt.Fprintf(&sb, "Reference images: %d\n", len(b.References))
	fmt.Fprintf(&sb, "Product images: %d", len(b.Products))
	return sb.String()
}
