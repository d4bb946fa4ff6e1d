// Package auth supplies bearer tokens to the chat client and classifies
// authentication failures.
package auth

import (
	"errors"
	"os"
	"strings"
	"sync"
)

var (
	// ErrNoToken is returned when no usable token is available. Callers treat
	// it as a short circuit: no request is issued.
	ErrNoToken = errors.New("no auth token available")

	// ErrUnauthorized marks a 401 from the server. It is fatal to the session.
	ErrUnauthorized = errors.New("unauthorized")
)

// TokenProvider supplies the current bearer token, if any.
type TokenProvider interface {
	Token() (string, bool)
}

// Invalidator is implemented by providers that can drop their token after the
// server rejected it.
type Invalidator interface {
	Invalidate()
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Invalidate drops the token of p when p supports it.
func Invalidate(p TokenProvider) {
	if inv, ok := p.(Invalidator); ok {
		inv.Invalidate()
	}
}

// StaticTokenProvider always returns the same token.
type StaticTokenProvider string

// Token implements TokenProvider.
func (s StaticTokenProvider) Token() (string, bool) {
	token := strings.TrimSpace(string(s))
	return token, token != ""
}

// MemoryTokenProvider holds a token that can be replaced or invalidated.
type MemoryTokenProvider struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenProvider creates a provider seeded with token.
func NewMemoryTokenProvider(token string) *MemoryTokenProvider {
	return &MemoryTokenProvider{token: strings.TrimSpace(token)}
}

// Token implements TokenProvider.
func (m *MemoryTokenProvider) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Set replaces the token.
func (m *MemoryTokenProvider) Set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = strings.TrimSpace(token)
}

// Invalidate implements Invalidator.
func (m *MemoryTokenProvider) Invalidate() {
	m.Set("")
}

// FileTokenProvider re-reads a token file on every call, so a login flow
// writing the file is picked up without a restart.
type FileTokenProvider struct {
	Path string

	mu          sync.Mutex
	invalidated string
}

// Token implements TokenProvider.
func (f *FileTokenProvider) Token() (string, bool) {
	if strings.TrimSpace(f.Path) == "" {
		return "", false
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if token == f.invalidated {
		return "", false
	}
	return token, true
}

// Invalidate ignores the current file content until it changes.
func (f *FileTokenProvider) Invalidate() {
	token, ok := f.Token()
	if !ok {
		return
	}
	f.mu.Lock()
	f.invalidated = token
	f.mu.Unlock()
}

type offlineAware struct {
	TokenProvider
	sentinel string
}

// OfflineAware treats the sentinel token as absent. An empty sentinel returns
// p unchanged.
func OfflineAware(p TokenProvider, sentinel string) TokenProvider {
	sentinel = strings.TrimSpace(sentinel)
	if sentinel == "" {
		return p
	}
	return &offlineAware{TokenProvider: p, sentinel: sentinel}
}

func (o *offlineAware) Token() (string, bool) {
	token, ok := o.TokenProvider.Token()
	if !ok || token == o.sentinel {
		return "", false
	}
	return token, true
}

func (o *offlineAware) Invalidate() {
	Invalidate(o.TokenProvider)
}
