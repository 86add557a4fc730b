package r2s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClientPutSignsRequest(t *testing.T) {
	var (
		mu      sync.Mutex
		gotURI  string
		gotHdr  http.Header
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotURI, gotHdr, gotBody = r.URL.Path, r.Header.Clone(), string(b)
		mu.Unlock()
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "snaps", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := c.PutBytes(context.Background(), "/snapshots/10.snap.zst", []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotURI != "/snaps/snapshots/10.snap.zst" {
		t.Fatalf("uri=%q", gotURI)
	}
	if gotBody != "payload" {
		t.Fatalf("body=%q", gotBody)
	}
	auth := gotHdr.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AK/20260301/auto/s3/aws4_request") {
		t.Fatalf("authorization=%q", auth)
	}
	if gotHdr.Get("x-amz-date") != "20260301T120000Z" {
		t.Fatalf("x-amz-date=%q", gotHdr.Get("x-amz-date"))
	}
}

func TestClientPutReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := New(Config{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = c.PutBytes(context.Background(), "k", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	if _, ok, err := ConfigFromEnv(lookup); ok || err != nil {
		t.Fatalf("disabled mirror: ok=%v err=%v", ok, err)
	}
	env["TILEFORGE_MIRROR"] = "true"
	if _, ok, err := ConfigFromEnv(lookup); !ok || !errors.Is(err, ErrIncompleteConfig) {
		t.Fatalf("incomplete config: ok=%v err=%v", ok, err)
	}
	env["TILEFORGE_MIRROR_ENDPOINT"] = "r2.example.com"
	env["TILEFORGE_MIRROR_BUCKET"] = "b"
	env["TILEFORGE_MIRROR_ACCESS_KEY_ID"] = "a"
	env["TILEFORGE_MIRROR_SECRET_ACCESS_KEY"] = "s"
	env["TILEFORGE_MIRROR_WORKERS"] = "3"
	cfg, ok, err := ConfigFromEnv(lookup)
	if !ok || err != nil || cfg.Workers != 3 || cfg.Bucket != "b" {
		t.Fatalf("unexpected config %+v ok=%v err=%v", cfg, ok, err)
	}
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	fail int
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("transient")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirrorUploadsRelativeKeys(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "snapshots", "5.snap.zst")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	outside := filepath.Join(t.TempDir(), "other.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	up := &fakeUploader{fail: 1}
	m := NewMirror(up, dir, "/world-a/", 1, nil)
	m.backoff = time.Millisecond
	m.Enqueue(p)
	m.Enqueue(outside)
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "world-a/snapshots/5.snap.zst" {
		t.Fatalf("unexpected keys %v", up.keys)
	}
	st := m.Stats()
	if st.Uploaded != 1 || st.Failed != 1 || st.Enqueued != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
