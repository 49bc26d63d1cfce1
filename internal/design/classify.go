package design

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ProviderError is the failure shape providers return for API-level errors.
// Message may embed the raw JSON error body.
type ProviderError struct {
	Code    int
	Status  string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != "" {
		return fmt.Sprintf("provider error %d %s", e.Code, e.Status)
	}
	return fmt.Sprintf("provider error %d", e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classification is derived from a failure each time it is raised.
type Classification struct {
	Message          string
	Code             int
	Status           string
	Overload         bool
	PermissionDenied bool
}

var jsonFragmentRegex = regexp.MustCompile(`(?s)\{.*\}`)

type embeddedError struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Classify inspects err and reports whether it is an overload or a permission failure.
func Classify(err error) Classification {
	var c Classification
	if err == nil {
		return c
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		c.Message = perr.Message
		c.Code = perr.Code
		c.Status = perr.Status
		if c.Message == "" {
			c.Message = perr.Error()
		}
	} else {
		c.Message = err.Error()
	}

	if fragment := jsonFragmentRegex.FindString(c.Message); fragment != "" {
		var parsed embeddedError
		if json.Unmarshal([]byte(fragment), &parsed) == nil && parsed.Error != nil {
			if parsed.Error.Message != "" {
				c.Message = parsed.Error.Message
			}
			if parsed.Error.Code != 0 {
				c.Code = parsed.Error.Code
			}
			if parsed.Error.Status != "" {
				c.Status = parsed.Error.Status
			}
		}
	}

	c.Overload = isOverload(c)
	c.PermissionDenied = isPermissionDenied(c)
	return c
}

func isOverload(c Classification) bool {
	switch c.Code {
	case 429, 500, 503:
		return true
	}
	switch c.Status {
	case "UNAVAILABLE", "INTERNAL", "RESOURCE_EXHAUSTED":
		return true
	}
	return strings.Contains(c.Message, "503") ||
		strings.Contains(c.Message, "500") ||
		strings.Contains(strings.ToLower(c.Message), "overloaded")
}

func isPermissionDenied(c Classification) bool {
	if c.Code == 403 || c.Status == "PERMISSION_DENIED" {
		return true
	}
	return strings.Contains(c.Message, "403") ||
		strings.Contains(c.Message, "PERMISSION_DENIED") ||
		strings.Contains(c.Message, "Requested entity was not found")
}
