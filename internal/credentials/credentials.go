// Package credentials handles the bearer-token cache consumed by the sync
// engine. Tokens are stored on disk alongside cached account metadata
// (user id, email). Token issuance and the refresh protocol live outside
// this package; refresh is delegated to an injected Refresher capability.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// ErrNoCredentials indicates no token is cached. The caller must obtain one
// through the login flow before syncing.
var ErrNoCredentials = errors.New("credentials: no cached token (login required)")

// ErrRefreshFailed indicates the refresh capability could not produce a
// replacement token. The sync worker treats this as non-retryable.
var ErrRefreshFailed = errors.New("credentials: token refresh failed")

// Refresher exchanges an expired token for a fresh one. Implemented by the
// auth layer; the engine never mints tokens itself.
type Refresher interface {
	Refresh(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error)
}

// File is the on-disk format for the token cache. Includes the OAuth token
// and account metadata cached from API responses.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Cache is a file-backed token source. Safe for concurrent use; the sync
// worker and the CLI both read from it.
type Cache struct {
	path      string
	refresher Refresher

	mu  sync.Mutex
	tok *oauth2.Token
}

// NewCache creates a Cache reading from and writing to path. refresher may
// be nil, in which case Refresh always fails.
func NewCache(path string, refresher Refresher) *Cache {
	return &Cache{path: path, refresher: refresher}
}

// Token returns the cached bearer token string, loading it from disk on
// first use. Returns ErrNoCredentials when nothing is cached and
// ErrRefreshFailed via Refresh semantics when the token is expired and
// cannot be renewed.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok == nil {
		tok, _, err := Load(c.path)
		if err != nil {
			return "", err
		}

		if tok == nil {
			return "", ErrNoCredentials
		}

		c.tok = tok
	}

	if !c.tok.Valid() {
		return c.refreshLocked(ctx)
	}

	return c.tok.AccessToken, nil
}

// Refresh forces a token refresh regardless of expiry, persisting the
// replacement. The sync worker calls this once after a 401 before giving up.
func (c *Cache) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refreshLocked(ctx)
}

// refreshLocked renews the cached token. Caller must hold mu.
func (c *Cache) refreshLocked(ctx context.Context) (string, error) {
	if c.refresher == nil {
		return "", ErrRefreshFailed
	}

	if c.tok == nil {
		return "", ErrNoCredentials
	}

	fresh, err := c.refresher.Refresh(ctx, c.tok)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	c.tok = fresh

	if err := Save(c.path, fresh, nil); err != nil {
		return "", err
	}

	return fresh.AccessToken, nil
}

// Load reads a saved token file from disk. Returns the OAuth token and any
// cached metadata. Returns (nil, nil, nil) if the file does not exist.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("credentials: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("credentials: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, nil, fmt.Errorf("credentials: %s missing token field (re-login required)", path)
	}

	return tf.Token, tf.Meta, nil
}

// Save writes a token file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	tf := File{Token: tok, Meta: meta}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credentials: creating directory %s: %w", dir, mkErr)
	}

	// Temp file in the same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("credentials: creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("credentials: writing temp file: %w", err)
	}

	if err := tmp.Chmod(FilePerms); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("credentials: setting permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("credentials: closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("credentials: renaming into place: %w", err)
	}

	return nil
}

// Static is a fixed-token source for tests and scripted environments.
type Static struct {
	AccessToken string
}

// Token returns the fixed token.
func (s Static) Token(context.Context) (string, error) {
	if s.AccessToken == "" {
		return "", ErrNoCredentials
	}

	return s.AccessToken, nil
}

// Refresh on a Static source always fails; there is nothing to renew with.
func (s Static) Refresh(context.Context) (string, error) {
	return "", ErrRefreshFailed
}

// NewExpiringToken builds an oauth2.Token for tests.
func NewExpiringToken(access string, expiry time.Time) *oauth2.Token {
	return &oauth2.Token{AccessToken: access, Expiry: expiry}
}
