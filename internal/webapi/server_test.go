package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banner-studio/internal/credentials"
	"banner-studio/internal/design"
	"banner-studio/internal/gallery"
	"banner-studio/internal/metrics"
)

type stubProvider struct {
	mu    sync.Mutex
	calls []design.Call
	errs  []error
}

func (p *stubProvider) GenerateContent(_ context.Context, call design.Call) (*design.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &design.Response{Candidates: []design.Candidate{{
		Parts: []design.Part{design.InlinePart(design.Asset{MIMEType: "image/png", Data: []byte{1, 2, 3}})},
	}}}, nil
}

type testServer struct {
	srv      *httptest.Server
	provider *stubProvider
	gallery  *gallery.Store
}

func newTestServer(t *testing.T, serverKey string, perMinute int) *testServer {
	t.Helper()
	provider := &stubProvider{}
	svc, err := design.New(design.Options{
		Provider:    provider,
		Credentials: credentials.NewStatic(credentials.StaticOptions{}),
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
	require.NoError(t, err)

	store := gallery.New(gallery.Options{})
	s := New(Options{
		Designer:      svc,
		Gallery:       store,
		Metrics:       metrics.New(prometheus.NewRegistry()),
		ServerKey:     serverKey,
		RatePerMinute: perMinute,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, provider: provider, gallery: store}
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) generate(t *testing.T, key string, fields map[string]string, files map[string][]byte) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, fields, files)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/generate", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	if key != "" {
		req.Header.Set(credentials.HeaderName, key)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestGenerate(t *testing.T) {
	ts := newTestServer(t, "", 100)

	resp := ts.generate(t, "client-key", map[string]string{
		"aspect_ratio":   "cover",
		"description":    "Winter boots",
		"headline":       "NEW IN",
		"headline_style": "3",
		"variations":     "2",
	}, map[string][]byte{"product": pngHeader})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[generateResponse](t, resp)
	assert.NotEmpty(t, out.ProjectID)
	require.Len(t, out.Images, 2)
	assert.Equal(t, "Modern Minimalist", out.Images[0].Style)
	assert.Equal(t, "Bold & Vibrant", out.Images[1].Style)
	assert.Equal(t, design.AspectSocialCover, out.Images[0].AspectRatio)

	require.Len(t, ts.provider.calls, 2)
	call := ts.provider.calls[0]
	assert.Equal(t, "client-key", call.APIKey)
	assert.Equal(t, "16:9", call.Request.Image.AspectRatio)
	require.NotNil(t, call.Request.Parts[0].Inline)
	assert.Equal(t, "image/png", call.Request.Parts[0].Inline.MIMEType)
	assert.Contains(t, call.Request.Parts[len(call.Request.Parts)-1].Text, "Use Bold Display typography.")

	list, err := ts.gallery.List(out.ProjectID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGenerate_BadInput(t *testing.T) {
	ts := newTestServer(t, "k", 100)

	for name, fields := range map[string]map[string]string{
		"empty brief":      {},
		"bad ratio":        {"description": "x", "aspect_ratio": "3:2"},
		"too many":         {"description": "x", "variations": "6"},
		"bad heading":      {"description": "x", "headline_style": "Comic"},
		"non-numeric vars": {"description": "x", "variations": "two"},
	} {
		resp := ts.generate(t, "", fields, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
	assert.Empty(t, ts.provider.calls)
}

func TestGenerate_MissingCredential(t *testing.T) {
	ts := newTestServer(t, "", 100)

	resp := ts.generate(t, "", map[string]string{"description": "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	out := decode[apiError](t, resp)
	assert.True(t, out.CredentialRequired)
	assert.Equal(t, design.KindMissingCredential, out.Kind)
	assert.Empty(t, ts.provider.calls)
}

func TestGenerate_ServerKeyUsed(t *testing.T) {
	ts := newTestServer(t, "server-key", 100)

	resp := ts.generate(t, "", map[string]string{"description": "x"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "server-key", ts.provider.calls[0].APIKey)
}

func TestGenerate_PartialFailureKeepsImages(t *testing.T) {
	ts := newTestServer(t, "k", 100)
	ts.provider.errs = []error{nil, errors.New("connection reset by peer")}

	resp := ts.generate(t, "", map[string]string{"description": "x", "variations": "3"}, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	out := decode[apiError](t, resp)
	assert.Equal(t, design.KindUnclassified, out.Kind)
	assert.Len(t, out.Images, 1)
	assert.NotEmpty(t, out.ProjectID)
	assert.Len(t, ts.provider.calls, 2)
}

func TestErrorResponse(t *testing.T) {
	cases := []struct {
		kind   design.Kind
		status int
	}{
		{design.KindMissingCredential, http.StatusUnauthorized},
		{design.KindInvalidCredential, http.StatusUnauthorized},
		{design.KindInsufficientPrivilege, http.StatusForbidden},
		{design.KindServiceOverloaded, http.StatusServiceUnavailable},
		{design.KindContentBlocked, http.StatusUnprocessableEntity},
		{design.KindEmptyResult, http.StatusBadGateway},
	}
	for _, c := range cases {
		status, body := errorResponse(&design.Error{Kind: c.kind, Message: "m"}, false)
		assert.Equal(t, c.status, status, c.kind)
		assert.Equal(t, c.kind, body.Kind)
	}

	status, body := errorResponse(fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.False(t, body.CredentialRequired)

	status, _ = errorResponse(errors.New("boom"), false)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestGenerate_InvalidKey(t *testing.T) {
	ts := newTestServer(t, "", 100)
	ts.provider.errs = []error{&design.ProviderError{Code: 403, Message: "API key not valid"}}

	resp := ts.generate(t, "bad", map[string]string{"description": "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	out := decode[apiError](t, resp)
	assert.Equal(t, design.KindInvalidCredential, out.Kind)
	assert.True(t, out.CredentialRequired)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, "k", 1)

	first := ts.generate(t, "", map[string]string{"description": "x"}, nil)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := ts.generate(t, "", map[string]string{"description": "x"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)

	other := ts.generate(t, "another-key", map[string]string{"description": "x"}, nil)
	assert.Equal(t, http.StatusOK, other.StatusCode)
}

func postJSON(t *testing.T, ts *testServer, path string, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := ts.srv.Client().Post(ts.srv.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEditFromGallery(t *testing.T) {
	ts := newTestServer(t, "k", 100)
	gen := decode[generateResponse](t, ts.generate(t, "", map[string]string{"description": "x", "aspect_ratio": "portrait"}, nil))
	require.Len(t, gen.Images, 1)

	resp := postJSON(t, ts, "/api/edit", editRequest{ImageID: gen.Images[0].ID, Instruction: "add snow"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[editResponse](t, resp)
	assert.Equal(t, gen.ProjectID, out.ProjectID)
	assert.Equal(t, "Modern Minimalist (edited)", out.Image.Style)
	assert.Equal(t, design.AspectPortrait, out.Image.AspectRatio)

	editCall := ts.provider.calls[1]
	assert.Equal(t, "9:16", editCall.Request.Image.AspectRatio)
	assert.Empty(t, editCall.Request.Safety)
}

func TestEditFromDataURL(t *testing.T) {
	ts := newTestServer(t, "k", 100)

	resp := postJSON(t, ts, "/api/edit", editRequest{
		DataURL:     "data:image/jpeg;base64,AQID",
		Instruction: "crop tighter",
		AspectRatio: "cover",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[editResponse](t, resp)
	assert.Equal(t, "Uploaded (edited)", out.Image.Style)
	assert.Equal(t, "image/jpeg", ts.provider.calls[0].Request.Parts[0].Inline.MIMEType)
	assert.Contains(t, ts.provider.calls[0].Request.Parts[1].Text, "SOCIAL COVER DESIGN")
}

func TestEditFromDataURL_ProjectFiledOnSuccessOnly(t *testing.T) {
	ts := newTestServer(t, "k", 100)
	ts.provider.errs = []error{&design.ProviderError{Code: 400, Message: "bad image"}}

	failed := postJSON(t, ts, "/api/edit", editRequest{DataURL: "AQID", Instruction: "x"})
	require.Equal(t, http.StatusInternalServerError, failed.StatusCode)
	assert.Empty(t, decode[apiError](t, failed).ProjectID)

	gen := decode[generateResponse](t, ts.generate(t, "", map[string]string{"description": "x"}, nil))
	ok := postJSON(t, ts, "/api/edit", editRequest{DataURL: "AQID", ProjectID: gen.ProjectID, Instruction: "x"})
	require.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, gen.ProjectID, decode[editResponse](t, ok).ProjectID)

	list, err := ts.gallery.List(gen.ProjectID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	fresh := postJSON(t, ts, "/api/edit", editRequest{DataURL: "AQID", ProjectID: "expired", Instruction: "x"})
	require.Equal(t, http.StatusOK, fresh.StatusCode)
	out := decode[editResponse](t, fresh)
	assert.NotEqual(t, "expired", out.ProjectID)
	assert.NotEmpty(t, out.ProjectID)
}

func TestEditErrors(t *testing.T) {
	ts := newTestServer(t, "k", 100)

	resp := postJSON(t, ts, "/api/edit", editRequest{ImageID: "nope", Instruction: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts, "/api/edit", editRequest{Instruction: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts, "/api/edit", editRequest{ImageID: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := ts.srv.Client().Post(ts.srv.URL+"/api/edit", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestEditOverloaded(t *testing.T) {
	ts := newTestServer(t, "k", 100)
	for i := 0; i < 5; i++ {
		ts.provider.errs = append(ts.provider.errs, &design.ProviderError{Code: 503, Message: "overloaded"})
	}

	resp := postJSON(t, ts, "/api/edit", editRequest{DataURL: "AQID", Instruction: "x"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Len(t, ts.provider.calls, 5)
}

func TestGalleryEndpoints(t *testing.T) {
	ts := newTestServer(t, "k", 100)
	gen := decode[generateResponse](t, ts.generate(t, "", map[string]string{"description": "x"}, nil))

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/api/projects/" + gen.ProjectID + "/images")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[generateResponse](t, resp).Images, 1)

	id := gen.Images[0].ID
	resp2, err := ts.srv.Client().Get(ts.srv.URL + "/api/images/" + id)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, id, decode[gallery.Image](t, resp2).ID)

	resp3, err := ts.srv.Client().Get(ts.srv.URL + "/api/images/" + id + "/raw")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, "image/png", resp3.Header.Get("content-type"))

	resp4, err := ts.srv.Client().Get(ts.srv.URL + "/api/projects/missing/images")
	require.NoError(t, err)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}

func TestOptionsAndMetrics(t *testing.T) {
	ts := newTestServer(t, "k", 100)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/api/options")
	require.NoError(t, err)
	defer resp.Body.Close()
	opts := decode[optionsResponse](t, resp)
	assert.Len(t, opts.DesignStyles, 7)
	assert.Len(t, opts.HeadingStyles, 7)
	assert.Equal(t, 5, opts.MaxVariations)
	assert.True(t, opts.ServerKey)

	m, err := ts.srv.Client().Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	assert.Equal(t, http.StatusOK, m.StatusCode)
}
