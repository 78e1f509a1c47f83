package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
)

// fakeBucket accepts single-part PutObject calls on a path-style endpoint.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.objects[r.URL.Path] = body
	b.mu.Unlock()
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBucket) get(path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.objects[path]
	return v, ok
}

func newTestS3(t *testing.T) (*S3, *fakeBucket) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	bucket := &fakeBucket{objects: make(map[string][]byte)}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	s, err := NewS3(context.Background(), S3Options{Bucket: "lectern", Region: "us-east-1", Prefix: "dev", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	return s, bucket
}

func TestS3_AbortKeepsPartialObject(t *testing.T) {
	s, bucket := newTestS3(t)
	key := "recordings/m1/host-abc.webm"

	w, err := s.Create(context.Background(), key, "audio/webm")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, chunk := range []string{"first ", "second"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	w.Abort(errors.New("encoder crashed"))

	body, ok := bucket.get("/lectern/dev/" + key)
	if !ok {
		t.Fatal("no object uploaded")
	}
	if !bytes.Contains(body, []byte("first second")) {
		t.Errorf("object = %q, want the bytes written before abort", body)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("write after abort succeeded")
	}
	if _, err := w.Commit(); err == nil {
		t.Error("commit after abort succeeded")
	}
}

func TestS3_Commit(t *testing.T) {
	s, bucket := newTestS3(t)
	key := "recordings/m1/host-def.webm"

	w, _ := s.Create(context.Background(), key, "audio/webm")
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	obj, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if obj.Key != key || obj.Size != 5 {
		t.Errorf("Commit = %+v", obj)
	}
	if body, ok := bucket.get("/lectern/dev/" + key); !ok || !bytes.Contains(body, []byte("hello")) {
		t.Errorf("object = %q (%v)", body, ok)
	}
}
