// Package genaisdk serves design.Provider through the official Go GenAI SDK.
package genaisdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"banner-studio/internal/design"
)

type Options struct {
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider builds a short-lived SDK client per call because the API key
// belongs to the call, not to the process.
type Provider struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{
		baseURL:    strings.TrimSpace(opts.BaseURL),
		apiVersion: strings.TrimSpace(opts.APIVersion),
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

func (p *Provider) GenerateContent(ctx context.Context, call design.Call) (*design.Response, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     call.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    p.baseURL,
			APIVersion: p.apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	contents := []*genai.Content{genai.NewContentFromParts(toParts(call.Request.Parts), genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, call.Model, contents, toConfig(call.Request))
	if err != nil {
		return nil, providerError(err)
	}

	p.logger.Debug("genai call", "model", call.Model, "candidates", len(resp.Candidates))
	return fromResponse(resp), nil
}

func toParts(parts []design.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		if part.Inline != nil {
			out = append(out, &genai.Part{InlineData: &genai.Blob{
				MIMEType: part.Inline.MIMEType,
				Data:     part.Inline.Data,
			}})
			continue
		}
		out = append(out, genai.NewPartFromText(part.Text))
	}
	return out
}

func toConfig(req design.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: req.Image.AspectRatio,
			ImageSize:   req.Image.ImageSize,
		},
	}
	for _, s := range req.Safety {
		cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}
	return cfg
}

func fromResponse(resp *genai.GenerateContentResponse) *design.Response {
	out := &design.Response{}
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		dc := design.Candidate{FinishReason: string(cand.FinishReason)}
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch {
				case part == nil:
				case part.InlineData != nil:
					dc.Parts = append(dc.Parts, design.InlinePart(design.Asset{
						MIMEType: part.InlineData.MIMEType,
						Data:     part.InlineData.Data,
					}))
				case part.Text != "":
					dc.Parts = append(dc.Parts, design.TextPart(part.Text))
				}
			}
		}
		out.Candidates = append(out.Candidates, dc)
	}
	return out
}

// providerError lifts SDK API errors into the shape the classifier reads.
// Transport errors pass through unchanged.
func providerError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &design.ProviderError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &design.ProviderError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message, Err: err}
	}
	return err
}
