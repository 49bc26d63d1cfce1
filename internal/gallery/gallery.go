// Package gallery keeps generated designs grouped by project for a limited time.
package gallery

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"banner-studio/internal/design"
)

const (
	DefaultTTL           = 2 * time.Hour
	DefaultMaxPerProject = 50
	cleanupInterval      = 10 * time.Minute
	projectKeyPrefix     = "project:"
	imageKeyPrefix       = "image:"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrImageNotFound   = errors.New("image not found")
)

type Image struct {
	ID          string             `json:"id"`
	ProjectID   string             `json:"project_id"`
	Style       string             `json:"style"`
	Prompt      string             `json:"prompt,omitempty"`
	AspectRatio design.AspectRatio `json:"aspect_ratio"`
	Model       string             `json:"model"`
	DataURL     string             `json:"data_url"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (img Image) Asset() (design.Asset, error) {
	a, err := design.AssetFromDataURL(img.DataURL)
	if err != nil {
		return design.Asset{}, err
	}
	a.Name = img.ID
	return a, nil
}

type Options struct {
	TTL           time.Duration
	MaxPerProject int
	Now           func() time.Time
}

type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
	limit int
	now   func() time.Time
}

func New(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	limit := opts.MaxPerProject
	if limit <= 0 {
		limit = DefaultMaxPerProject
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
		limit: limit,
		now:   now,
	}
}

// CreateProject starts an empty project and returns its id.
func (s *Store) CreateProject() string {
	id := uuid.NewString()
	s.cache.Set(projectKeyPrefix+id, []string{}, s.ttl)
	return id
}

// EnsureProject returns id if it names a live project, otherwise a new one.
func (s *Store) EnsureProject(id string) string {
	id = strings.TrimSpace(id)
	if id != "" {
		if _, ok := s.cache.Get(projectKeyPrefix + id); ok {
			return id
		}
	}
	return s.CreateProject()
}

// Add stores a generated design under projectID.
func (s *Store) Add(projectID, prompt string, ratio design.AspectRatio, res design.Result) (Image, error) {
	return s.add(projectID, prompt, ratio, res, false)
}

// AddEdit stores an edit of source in the same project. When that project
// is gone the edit starts a new one.
func (s *Store) AddEdit(source Image, instruction string, res design.Result) (Image, error) {
	res.Style = design.EditedStyle(source.Style)
	return s.add(source.ProjectID, instruction, source.AspectRatio, res, true)
}

func (s *Store) add(projectID, prompt string, ratio design.AspectRatio, res design.Result, create bool) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.projectIDs(projectID)
	if !ok {
		if !create {
			return Image{}, ErrProjectNotFound
		}
		projectID = uuid.NewString()
	}

	img := Image{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Style:       res.Style,
		Prompt:      prompt,
		AspectRatio: ratio,
		Model:       res.Model,
		DataURL:     res.DataURL,
		CreatedAt:   s.now(),
	}

	ids = append(ids, img.ID)
	for len(ids) > s.limit {
		s.cache.Delete(imageKeyPrefix + ids[0])
		ids = ids[1:]
	}

	s.cache.Set(imageKeyPrefix+img.ID, img, s.ttl)
	s.cache.Set(projectKeyPrefix+projectID, ids, s.ttl)
	return img, nil
}

func (s *Store) Get(id string) (Image, error) {
	v, ok := s.cache.Get(imageKeyPrefix + id)
	if !ok {
		return Image{}, ErrImageNotFound
	}
	return v.(Image), nil
}

// List returns the project's images, newest first.
func (s *Store) List(projectID string) ([]Image, error) {
	s.mu.Lock()
	ids, ok := s.projectIDs(projectID)
	s.mu.Unlock()
	if !ok {
		return nil, ErrProjectNotFound
	}

	out := make([]Image, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if img, err := s.Get(ids[i]); err == nil {
			out = append(out, img)
		}
	}
	return out, nil
}

func (s *Store) projectIDs(projectID string) ([]string, bool) {
	v, ok := s.cache.Get(projectKeyPrefix + projectID)
	if !ok {
		return nil, false
	}
	ids := v.([]string)
	return append([]string(nil), ids...), true
}
