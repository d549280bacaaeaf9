// Package token supplies bearer credentials to the transport layer.
//
// The real OAuth flow is out of scope; FileProvider persists a simple JSON
// token record on disk and rotates it on refresh, which is enough for the
// transport's refresh-once-on-401 behavior to be exercised end to end.
// Callers select the provider explicitly; nothing here inspects environment
// variables.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Provider produces bearer credential strings for API requests.
type Provider interface {
	// AccessToken returns a token suitable for an Authorization: Bearer
	// header.
	AccessToken(ctx context.Context) (string, error)

	// Refresh replaces the current token after the API rejected it.
	Refresh(ctx context.Context) error
}

// StaticProvider returns a fixed token and treats Refresh as a no-op. Used
// in tests and for pre-provisioned credentials.
type StaticProvider struct {
	Token string
}

func (p *StaticProvider) AccessToken(ctx context.Context) (string, error) {
	return p.Token, nil
}

func (p *StaticProvider) Refresh(ctx context.Context) error {
	return nil
}

// record is the on-disk token file shape.
type record struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at,omitempty"` // RFC 3339 UTC
}

// expired reports whether the record's expiry has passed. Records without
// an expiry, or with one that does not parse, are treated as live so that a
// damaged file never blocks startup.
func (r record) expired(now time.Time) bool {
	if r.ExpiresAt == "" {
		return false
	}
	at, err := time.Parse(time.RFC3339, r.ExpiresAt)
	if err != nil {
		return false
	}
	return !now.Before(at)
}

// FileProvider reads and writes a JSON token record at a fixed path. A
// missing file is replaced by a short-lived placeholder record so the rest
// of the application can run locally before real credentials exist.
type FileProvider struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileProvider creates a provider backed by the token file at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path, now: time.Now}
}

func (p *FileProvider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.read()
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read token file: %w", err)
		}
		rec = record{
			AccessToken: "local-placeholder-token",
			ExpiresAt:   p.now().UTC().Add(30 * time.Minute).Format(time.RFC3339),
		}
		if err := p.write(rec); err != nil {
			return "", err
		}
	}
	return rec.AccessToken, nil
}

// Refresh rotates the record in place with a fresh expiry. A real OAuth
// refresh would land here.
func (p *FileProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := record{
		AccessToken: "local-refreshed-token",
		ExpiresAt:   p.now().UTC().Add(time.Hour).Format(time.RFC3339),
	}
	return p.write(rec)
}

func (p *FileProvider) read() (record, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("parse token file %s: %w", p.path, err)
	}
	return rec, nil
}

func (p *FileProvider) write(rec record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create token directory: %w", err)
		}
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
