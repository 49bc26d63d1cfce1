// Package credentials holds the CredentialGate implementations used by the
// web and chat surfaces.
package credentials

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Static serves one process-wide key.
type Static struct {
	key    string
	logger *slog.Logger
	onAsk  func()
}

type StaticOptions struct {
	Key    string
	Logger *slog.Logger
	// OnRequest runs when the core asks for a new key.
	OnRequest func()
}

func NewStatic(opts StaticOptions) *Static {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Static{key: strings.TrimSpace(opts.Key), logger: logger, onAsk: opts.OnRequest}
}

func (s *Static) Credential() string { return s.key }

func (s *Static) RequestCredential() {
	s.logger.Warn("configured GEMINI_API_KEY is missing or rejected")
	if s.onAsk != nil {
		s.onAsk()
	}
}

// Keyring keeps per-user keys in memory.
type Keyring struct {
	mu       sync.RWMutex
	keys     map[int64]string
	fallback string
}

func NewKeyring(fallback string) *Keyring {
	return &Keyring{
		keys:     make(map[int64]string),
		fallback: strings.TrimSpace(fallback),
	}
}

func (k *Keyring) Set(userID int64, key string) {
	key = strings.TrimSpace(key)
	k.mu.Lock()
	defer k.mu.Unlock()
	if key == "" {
		delete(k.keys, userID)
		return
	}
	k.keys[userID] = key
}

func (k *Keyring) Forget(userID int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, userID)
}

// Get returns the user's own key, or the fallback key.
func (k *Keyring) Get(userID int64) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, ok := k.keys[userID]; ok {
		return key
	}
	return k.fallback
}

func (k *Keyring) HasOwn(userID int64) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[userID]
	return ok
}

// Gate binds the keyring to one user. prompt is called on every
// re-prompt signal and must not block.
func (k *Keyring) Gate(userID int64, prompt func()) *UserGate {
	return &UserGate{ring: k, userID: userID, prompt: prompt}
}

type UserGate struct {
	ring   *Keyring
	userID int64
	prompt func()
}

func (g *UserGate) Credential() string { return g.ring.Get(g.userID) }

// RequestCredential drops the user's stored key so the next attempt does
// not reuse a rejected one, then prompts.
func (g *UserGate) RequestCredential() {
	g.ring.Forget(g.userID)
	if g.prompt != nil {
		g.prompt()
	}
}

// HeaderName carries a caller-supplied key on web requests.
const HeaderName = "X-Gemini-Api-Key"

// Request is a gate scoped to a single HTTP request.
type Request struct {
	key       string
	requested atomic.Bool
}

// ForRequest prefers the caller's key over the server's.
func ForRequest(headerKey, fallback string) *Request {
	key := strings.TrimSpace(headerKey)
	if key == "" {
		key = strings.TrimSpace(fallback)
	}
	return &Request{key: key}
}

func (r *Request) Credential() string { return r.key }

func (r *Request) RequestCredential() { r.requested.Store(true) }

// Requested reports whether the core asked for a new key during the request.
func (r *Request) Requested() bool { return r.requested.Load() }
