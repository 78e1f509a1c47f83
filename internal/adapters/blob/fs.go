// Package blob implements durable recording storage on the local
// filesystem and on S3.
package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const partSuffix = ".part"

var ErrBadKey = domain.Errorf(domain.KindValidation, "invalid object key")

// FS stores objects as files under Root. Open streams write to "<key>.part"
// and are renamed into place on commit.
type FS struct {
	Root    string
	BaseURL string
	secret  []byte
	now     func() time.Time
	logger  zerolog.Logger
}

func NewFS(root, baseURL string, secret []byte) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "create blob root", err)
	}
	return &FS{
		Root:    root,
		BaseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
		logger:  log.With().Str("module", "adapters.blob").Str("driver", "fs").Logger(),
	}, nil
}

// path resolves key under Root and rejects keys that would escape it.
func (s *FS) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" || strings.HasSuffix(key, partSuffix) {
		return "", ErrBadKey
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

func (s *FS) Create(_ context.Context, key, _ string) (core.BlobWriter, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "create object dir", err)
	}
	f, err := os.OpenFile(p+partSuffix, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "open object", err)
	}
	return &fsWriter{f: f, final: p, key: key, logger: s.logger}, nil
}

type fsWriter struct {
	mu     sync.Mutex
	f      *os.File
	final  string
	key    string
	size   int64
	done   bool
	logger zerolog.Logger
}

func (w *fsWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return 0, os.ErrClosed
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *fsWriter) Commit() (core.BlobObject, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return core.BlobObject{}, os.ErrClosed
	}
	w.done = true
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return core.BlobObject{}, domain.Wrap(domain.KindStorage, "sync object", err)
	}
	if err := w.f.Close(); err != nil {
		return core.BlobObject{}, domain.Wrap(domain.KindStorage, "close object", err)
	}
	if err := os.Rename(w.f.Name(), w.final); err != nil {
		return core.BlobObject{}, domain.Wrap(domain.KindStorage, "publish object", err)
	}
	return core.BlobObject{Key: w.key, Size: w.size}, nil
}

// Abort closes the stream and leaves the partial file for inspection.
func (w *fsWriter) Abort(cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	_ = w.f.Close()
	w.logger.Warn().Err(cause).Str("key", w.key).Int64("size", w.size).Msg("object aborted, partial file kept")
}

func (s *FS) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, domain.Wrap(domain.KindStorage, "stat object", err)
	}
	return true, nil
}

// Delete removes the object and any partial file. Missing files are fine.
func (s *FS) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	for _, name := range []string{p, p + partSuffix} {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return domain.Wrap(domain.KindStorage, "delete object", err)
		}
	}
	return nil
}

func (s *FS) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns a link to the blob route valid for ttl.
func (s *FS) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(key, exp))
	return s.BaseURL + "/api/blobs/" + key + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (s *FS) Verify(key, expires, sig string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return false
	}
	want := s.sign(key, exp)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Handler serves signed objects. A recording still being written is served
// from its partial file.
func (s *FS) Handler(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !s.Verify(key, c.Query("expires"), c.Query("sig")) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": domain.KindAuthorization, "message": "invalid or expired signature"})
		return
	}
	p, err := s.path(key)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": domain.KindValidation, "message": err.Error()})
		return
	}
	for _, name := range []string{p, p + partSuffix} {
		if _, err := os.Stat(name); err == nil {
			c.File(name)
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": domain.KindNotFound, "message": "object not found"})
}
