package session

import (
	"sync"
	"time"

	"banner-studio/internal/catalog"
	"banner-studio/internal/design"
)

// MaxAssetsPerRole caps references and products separately.
const MaxAssetsPerRole = 10

type Role int

const (
	RoleProduct Role = iota
	RoleReference
)

func (r Role) String() string {
	if r == RoleReference {
		return "reference"
	}
	return "product"
}

// Image is a generated design kept for follow-up edits.
type Image struct {
	Result      design.Result
	AspectRatio design.AspectRatio
}

type Session struct {
	UserID       int64
	Username     string
	Brief        design.Brief
	Images       []Image
	LastActivity time.Time
}

type Options struct {
	MaxImages int
}

type Store struct {
	mu        sync.Mutex
	sessions  map[int64]*Session
	busy      map[int64]bool
	maxImages int
}

func NewStore(opts Options) *Store {
	maxImages := opts.MaxImages
	if maxImages <= 0 {
		maxImages = 20
	}

	return &Store{
		sessions:  make(map[int64]*Session),
		busy:      make(map[int64]bool),
		maxImages: maxImages,
	}
}

// DefaultBrief is the brief a new or reset session starts with.
func DefaultBrief() design.Brief {
	return design.Brief{
		AspectRatio:   design.AspectSquare,
		HeadlineStyle: catalog.DefaultHeadingStyle,
		Variations:    design.MinVariations,
	}
}

func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.Brief = DefaultBrief()
		sess.Images = nil
		sess.LastActivity = time.Now()
	}
}

// Snapshot returns a copy that is safe to use after the lock is released.
func (s *Store) Snapshot(userID int64, username string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()
	return cloneSession(sess)
}

// UpdateBrief applies fn to the user's brief and returns the result.
func (s *Store) UpdateBrief(userID int64, username string, fn func(*design.Brief)) design.Brief {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()
	fn(&sess.Brief)
	return cloneSession(sess).Brief
}

// AddAssets attaches uploaded images to the brief. It returns how many of
// each role the brief holds afterwards.
func (s *Store) AddAssets(userID int64, username string, role Role, assets ...design.Asset) (refs, products int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()

	switch role {
	case RoleReference:
		sess.Brief.References = appendCapped(sess.Brief.References, assets)
	default:
		sess.Brief.Products = appendCapped(sess.Brief.Products, assets)
	}
	return len(sess.Brief.References), len(sess.Brief.Products)
}

// AddImage remembers a generated design and returns its 1-based number.
// The oldest images fall off once the cap is reached.
func (s *Store) AddImage(userID int64, username string, img Image) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()

	sess.Images = append(sess.Images, img)
	if len(sess.Images) > s.maxImages {
		sess.Images = sess.Images[len(sess.Images)-s.maxImages:]
	}
	return len(sess.Images)
}

// Image returns the n-th remembered design, counting from 1.
func (s *Store) Image(userID int64, n int) (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok || n < 1 || n > len(sess.Images) {
		return Image{}, false
	}
	return sess.Images[n-1], true
}

// TryBegin marks the user as running a generation. It reports false when
// one is already running; callers that get true must call End.
func (s *Store) TryBegin(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[userID] {
		return false
	}
	s.busy[userID] = true
	return true
}

func (s *Store) End(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, userID)
}

func (s *Store) getOrCreateLocked(userID int64, username string) *Session {
	if sess, ok := s.sessions[userID]; ok {
		if sess.Username == "" && username != "" {
			sess.Username = username
		}
		return sess
	}

	sess := &Session{
		UserID:       userID,
		Username:     username,
		Brief:        DefaultBrief(),
		LastActivity: time.Now(),
	}
	s.sessions[userID] = sess
	return sess
}

func appendCapped(dst, src []design.Asset) []design.Asset {
	dst = append(dst, src...)
	if len(dst) > MaxAssetsPerRole {
		dst = dst[len(dst)-MaxAssetsPerRole:]
	}
	return dst
}

func cloneSession(sess *Session) Session {
	out := *sess
	out.Brief.References = append([]design.Asset(nil), sess.Brief.References...)
	out.Brief.Products = append([]design.Asset(nil), sess.Brief.Products...)
	out.Images = append([]Image(nil), sess.Images...)
	return out
}
