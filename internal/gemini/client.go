package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"banner-studio/internal/design"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
)

type Options struct {
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the generateContent REST endpoint. The API key travels
// with each call, so one Client serves every user.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

func (c *Client) GenerateContent(ctx context.Context, call design.Call) (*design.Response, error) {
	if c.httpClient == nil {
		return nil, errors.New("http client is nil")
	}

	body, err := json.Marshal(encodeRequest(call.Request))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, call.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", call.APIKey)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("gemini call",
		"model", call.Model,
		"status", httpResp.StatusCode,
		"bytes", len(rawBody),
		"dur_ms", time.Since(start).Milliseconds(),
	)

	if httpResp.StatusCode >= 400 {
		return nil, &design.ProviderError{
			Code:    httpResp.StatusCode,
			Message: fmt.Sprintf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody))),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return decodeResponse(decoded)
}

func encodeRequest(req design.Request) generateContentRequest {
	parts := make([]part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Inline != nil {
			parts = append(parts, part{InlineData: &blob{
				MimeType: p.Inline.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Inline.Data),
			}})
			continue
		}
		parts = append(parts, part{Text: p.Text})
	}

	out := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig: &imageConfig{
				AspectRatio: req.Image.AspectRatio,
				ImageSize:   req.Image.ImageSize,
			},
		},
	}
	for _, s := range req.Safety {
		out.SafetySettings = append(out.SafetySettings, safetySetting{Category: s.Category, Threshold: s.Threshold})
	}
	return out
}

func decodeResponse(resp generateContentResponse) (*design.Response, error) {
	out := &design.Response{}
	for _, cand := range resp.Candidates {
		dc := design.Candidate{FinishReason: cand.FinishReason}
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p.InlineData != nil {
					data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
					if err != nil {
						return nil, fmt.Errorf("decode inline data: %w", err)
					}
					dc.Parts = append(dc.Parts, design.InlinePart(design.Asset{MIMEType: p.InlineData.MimeType, Data: data}))
					continue
				}
				if p.Text != "" {
					dc.Parts = append(dc.Parts, design.TextPart(p.Text))
				}
			}
		}
		out.Candidates = append(out.Candidates, dc)
	}
	return out, nil
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	SafetySettings   []safetySetting  `json:"safetySettings,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}
