// Package webapi is the JSON surface over the design service.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"banner-studio/internal/catalog"
	"banner-studio/internal/credentials"
	"banner-studio/internal/design"
	"banner-studio/internal/gallery"
	"banner-studio/internal/metrics"
)

const (
	maxUploadBytes = 25 << 20
	maxEditBytes   = 15 << 20
)

type Options struct {
	Designer       *design.Service
	Gallery        *gallery.Store
	Metrics        *metrics.Metrics
	ServerKey      string
	RatePerMinute  int
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	designer  *design.Service
	gallery   *gallery.Store
	metrics   *metrics.Metrics
	serverKey string
	timeout   time.Duration
	logger    *slog.Logger

	perMinute int
	limiters  *cache.Cache
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	perMinute := opts.RatePerMinute
	if perMinute < 1 {
		perMinute = 10
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Server{
		designer:  opts.Designer,
		gallery:   opts.Gallery,
		metrics:   opts.Metrics,
		serverKey: strings.TrimSpace(opts.ServerKey),
		timeout:   timeout,
		logger:    logger,
		perMinute: perMinute,
		limiters:  cache.New(15*time.Minute, 30*time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/generate", s.limited(s.handleGenerate))
	s.route(mux, "POST /api/edit", s.limited(s.handleEdit))
	s.route(mux, "GET /api/projects/{id}/images", s.handleListImages)
	s.route(mux, "GET /api/images/{id}", s.handleGetImage)
	s.route(mux, "GET /api/images/{id}/raw", s.handleRawImage)
	s.route(mux, "GET /api/options", s.handleOptions)
	s.route(mux, "GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return withLogging(mux, s.logger)
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		route := pattern
		if i := strings.IndexByte(pattern, ' '); i >= 0 {
			route = pattern[i+1:]
		}
		handler = s.metrics.Instrument(route, handler)
	}
	mux.Handle(pattern, handler)
}

type apiError struct {
	Error              string          `json:"error"`
	Kind               design.Kind     `json:"kind,omitempty"`
	CredentialRequired bool            `json:"credential_required,omitempty"`
	ProjectID          string          `json:"project_id,omitempty"`
	Images             []gallery.Image `json:"images,omitempty"`
}

type generateResponse struct {
	ProjectID string          `json:"project_id"`
	Images    []gallery.Image `json:"images"`
}

type editRequest struct {
	ImageID     string `json:"image_id"`
	DataURL     string `json:"data_url"`
	ProjectID   string `json:"project_id"`
	Instruction string `json:"instruction"`
	AspectRatio string `json:"aspect_ratio"`
}

type editResponse struct {
	ProjectID string        `json:"project_id"`
	Image     gallery.Image `json:"image"`
}

type optionsResponse struct {
	AspectRatios  []catalog.NamedOption `json:"aspect_ratios"`
	DesignStyles  []string              `json:"design_styles"`
	HeadingStyles []string              `json:"heading_styles"`
	MinVariations int                   `json:"min_variations"`
	MaxVariations int                   `json:"max_variations"`
	ServerKey     bool                  `json:"server_key"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	brief, err := briefFromForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	gate := credentials.ForRequest(r.Header.Get(credentials.HeaderName), s.serverKey)
	svc := s.designer.WithCredentials(gate)
	projectID := s.gallery.EnsureProject(r.FormValue("project_id"))

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	images := make([]gallery.Image, 0, brief.Variations)
	err = svc.GenerateVariations(ctx, brief, catalog.StylesFor(brief.Variations), func(_ int, res design.Result) error {
		img, err := s.gallery.Add(projectID, brief.Description, brief.AspectRatio, res)
		if err != nil {
			return err
		}
		images = append(images, img)
		return nil
	})
	if err != nil {
		s.writeDesignError(w, "generate", err, gate, projectID, images)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{ProjectID: projectID, Images: images})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEditBytes)

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "instruction is required"})
		return
	}

	source, asset, err := s.editSource(req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, gallery.ErrImageNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, apiError{Error: err.Error()})
		return
	}

	gate := credentials.ForRequest(r.Header.Get(credentials.HeaderName), s.serverKey)
	svc := s.designer.WithCredentials(gate)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := svc.Edit(ctx, asset, req.Instruction, source.AspectRatio)
	if err != nil {
		s.writeDesignError(w, "edit", err, gate, source.ProjectID, nil)
		return
	}

	img, err := s.gallery.AddEdit(source, req.Instruction, res)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, editResponse{ProjectID: img.ProjectID, Image: img})
}

// editSource resolves the image to edit, either from the gallery or from an
// uploaded data URL. It creates nothing; AddEdit files the result.
func (s *Server) editSource(req editRequest) (gallery.Image, design.Asset, error) {
	if id := strings.TrimSpace(req.ImageID); id != "" {
		img, err := s.gallery.Get(id)
		if err != nil {
			return gallery.Image{}, design.Asset{}, err
		}
		if req.AspectRatio != "" {
			ratio, err := design.ParseAspectRatio(req.AspectRatio)
			if err != nil {
				return gallery.Image{}, design.Asset{}, err
			}
			img.AspectRatio = ratio
		}
		asset, err := img.Asset()
		return img, asset, err
	}

	if strings.TrimSpace(req.DataURL) == "" {
		return gallery.Image{}, design.Asset{}, errors.New("image_id or data_url is required")
	}
	asset, err := design.AssetFromDataURL(req.DataURL)
	if err != nil {
		return gallery.Image{}, design.Asset{}, err
	}
	ratio := design.AspectSquare
	if req.AspectRatio != "" {
		if ratio, err = design.ParseAspectRatio(req.AspectRatio); err != nil {
			return gallery.Image{}, design.Asset{}, err
		}
	}
	return gallery.Image{
		ProjectID:   strings.TrimSpace(req.ProjectID),
		Style:       "Uploaded",
		AspectRatio: ratio,
	}, asset, nil
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.gallery.List(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{ProjectID: r.PathValue("id"), Images: images})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.gallery.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (s *Server) handleRawImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.gallery.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
		return
	}
	asset, err := img.Asset()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	w.Header().Set("content-type", asset.MIMEType)
	w.Header().Set("content-length", strconv.Itoa(len(asset.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(asset.Data)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, optionsResponse{
		AspectRatios:  catalog.AspectRatios(),
		DesignStyles:  catalog.DesignStyles(),
		HeadingStyles: catalog.HeadingStyles(),
		MinVariations: design.MinVariations,
		MaxVariations: design.MaxVariations,
		ServerKey:     s.serverKey != "",
	})
}

func (s *Server) writeDesignError(w http.ResponseWriter, op string, err error, gate *credentials.Request, projectID string, images []gallery.Image) {
	status, body := errorResponse(err, gate.Requested())
	body.ProjectID = projectID
	body.Images = images

	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "kind", body.Kind, "err", err)
	} else {
		s.logger.Warn(op+" failed", "kind", body.Kind, "err", err)
	}
	writeJSON(w, status, body)
}

// errorResponse maps a core failure onto an HTTP status.
func errorResponse(err error, credentialRequested bool) (int, apiError) {
	kind := design.KindOf(err)
	body := apiError{Error: err.Error(), Kind: kind, CredentialRequired: credentialRequested}

	switch kind {
	case design.KindMissingCredential, design.KindInvalidCredential:
		body.CredentialRequired = true
		return http.StatusUnauthorized, body
	case design.KindInsufficientPrivilege:
		return http.StatusForbidden, body
	case design.KindServiceOverloaded:
		return http.StatusServiceUnavailable, body
	case design.KindContentBlocked:
		return http.StatusUnprocessableEntity, body
	case design.KindEmptyResult:
		return http.StatusBadGateway, body
	}

	if errors.Is(err, context.DeadlineExceeded) {
		body.Error = "generation timed out"
		return http.StatusGatewayTimeout, body
	}
	return http.StatusInternalServerError, body
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(clientKey(r)).Allow() {
			w.Header().Set("retry-after", "60")
			writeJSON(w, http.StatusTooManyRequests, apiError{Error: "too many generation requests, slow down"})
			return
		}
		next(w, r)
	}
}

func (s *Server) limiterFor(key string) *rate.Limiter {
	if v, ok := s.limiters.Get(key); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute)
	if err := s.limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
		if v, ok := s.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// clientKey groups requests by caller key when one is sent, else by address.
func clientKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(credentials.HeaderName)); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func briefFromForm(r *http.Request) (design.Brief, error) {
	brief := design.Brief{
		AspectRatio:   design.AspectSquare,
		Description:   strings.TrimSpace(r.FormValue("description")),
		ProductNotes:  strings.TrimSpace(r.FormValue("product_notes")),
		Headline:      strings.TrimSpace(r.FormValue("headline")),
		HeadlineStyle: catalog.DefaultHeadingStyle,
		Subheadline:   strings.TrimSpace(r.FormValue("subheadline")),
		Variations:    design.MinVariations,
	}

	if v := strings.TrimSpace(r.FormValue("aspect_ratio")); v != "" {
		ratio, err := design.ParseAspectRatio(v)
		if err != nil {
			return design.Brief{}, err
		}
		brief.AspectRatio = ratio
	}
	if v := strings.TrimSpace(r.FormValue("headline_style")); v != "" {
		style, ok := catalog.HeadingStyle(v)
		if !ok {
			return design.Brief{}, errors.New("unknown headline_style")
		}
		brief.HeadlineStyle = style
	}
	if v := strings.TrimSpace(r.FormValue("variations")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return design.Brief{}, errors.New("variations must be a number")
		}
		brief.Variations = n
	}

	var err error
	if r.MultipartForm != nil {
		if brief.References, err = readAssets(r.MultipartForm.File["reference"]); err != nil {
			return design.Brief{}, err
		}
		if brief.Products, err = readAssets(r.MultipartForm.File["product"]); err != nil {
			return design.Brief{}, err
		}
	}

	if brief.Description == "" && brief.Headline == "" && len(brief.References) == 0 && len(brief.Products) == 0 {
		return design.Brief{}, errors.New("add a description, a headline or at least one image")
	}
	if err := brief.Validate(); err != nil {
		return design.Brief{}, err
	}
	return brief, nil
}

func readAssets(headers []*multipart.FileHeader) ([]design.Asset, error) {
	var out []design.Asset
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		out = append(out, design.Asset{
			Name:     fh.Filename,
			MIMEType: uploadMIME(fh.Header.Get("Content-Type"), data),
			Data:     data,
		})
	}
	return out, nil
}

func uploadMIME(header string, data []byte) string {
	mimeType := strings.TrimSpace(header)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = strings.TrimSpace(mimeType[:i])
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
