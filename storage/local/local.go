// Package local implements storage.Storage on the local filesystem and
// serves its objects over HTTP behind HMAC-signed, expiring URLs. It is
// meant for development and tests without S3.
package local

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/storage"
)

// Query parameters carried by signed URLs.
const (
	paramExpires   = "expires"
	paramSignature = "sig"
)

var (
	errBadSignature = errors.New("local: invalid signature")
	errExpired      = errors.New("local: url expired")
)

func init() {
	storage.RegisterFactory(storage.ProviderLocal, func(providerCfg any, deps storage.Deps) (storage.Storage, error) {
		c, ok := providerCfg.(*Config)
		if !ok || c == nil {
			return nil, fmt.Errorf("local: expected *local.Config, got %T", providerCfg)
		}
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return NewStorage(c, deps)
	})
}

// Storage implements storage.Storage using the local filesystem.
type Storage struct {
	basePath string
	baseURL  string
	key      []byte
	clock    clock.Clock
	log      *logger.Logger
}

// NewStorage creates a new local filesystem storage.
func NewStorage(cfg *Config, deps storage.Deps) (*Storage, error) {
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Storage{
		basePath: abs,
		baseURL:  cfg.BaseURL,
		key:      []byte(cfg.SigningKey),
		clock:    clock.OrReal(deps.Clock),
		log:      log.WithComponent("storage.local"),
	}, nil
}

// SignedURL returns BaseURL/key?expires=<unix>&sig=<hmac>.
func (s *Storage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("storage: local sign ttl must be positive, got %v", ttl)
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", time.Time{}, err
	}
	// URL expiry has second resolution; round down so the reported expiry
	// is never later than what the URL enforces.
	expiresAt := s.clock.Now().Add(ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)

	q := url.Values{}
	q.Set(paramExpires, exp)
	q.Set(paramSignature, s.sign(clean, exp))
	return s.baseURL + "/" + (&url.URL{Path: clean}).EscapedPath() + "?" + q.Encode(), expiresAt, nil
}

// Verify checks a key, expiry and signature taken from a signed URL.
func (s *Storage) Verify(key, expires, sig string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	want := s.sign(clean, expires)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return errBadSignature
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return errBadSignature
	}
	if !s.clock.Now().Before(time.Unix(unix, 0)) {
		return errExpired
	}
	return nil
}

func (s *Storage) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// Handler serves objects for signed URLs. Mount it under the path of
// BaseURL with that prefix stripped.
func (s *Storage) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		q := r.URL.Query()
		if err := s.Verify(key, q.Get(paramExpires), q.Get(paramSignature)); err != nil {
			s.log.Debug("rejected signed url", logger.Fields(logger.FieldObjectKey, key, logger.FieldReason, err.Error()))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		full, err := s.path(key)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	})
}

// Upload writes data from reader to a local file.
func (s *Storage) Upload(_ context.Context, key string, reader io.Reader) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("storage: create directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("storage: create file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		return fmt.Errorf("storage: write file: %w", err)
	}
	return f.Close()
}

// Delete removes a local file, returning storage.ErrNotFound if absent.
func (s *Storage) Delete(_ context.Context, key string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

// Exists checks whether a local file exists.
func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	full, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat file: %w", err)
	}
	return true, nil
}

// Walk visits every file whose slash-separated relative path starts with
// prefix, in lexical order.
func (s *Storage) Walk(ctx context.Context, prefix string, fn func(storage.ObjectInfo) error) error {
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			// prune directories that cannot contain a match
			if key != "." && !strings.HasPrefix(key+"/", prefix) && !strings.HasPrefix(prefix, key+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(storage.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Storage) path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

// cleanKey rejects keys that would escape the base directory.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", fmt.Errorf("storage: invalid object key %q", key)
	}
	return clean, nil
}

var _ storage.Storage = (*Storage)(nil)
