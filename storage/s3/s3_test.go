package s3

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/storage"
)

const testBucket = "media"

// fakeS3 answers the handful of path-style S3 calls Storage makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]time.Time
	deletes []string
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	Name                  string        `xml:"Name"`
	Prefix                string        `xml:"Prefix"`
	KeyCount              int           `xml:"KeyCount"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	Contents              []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	Size         int64  `xml:"Size"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+testBucket), "/")
	switch {
	case r.Method == http.MethodGet && key == "":
		f.list(w, r.URL.Query())
	case r.Method == http.MethodHead:
		mod, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Last-Modified", mod.UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", "3")
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		f.deletes = append(f.deletes, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

// list pages two keys at a time so the paginator is exercised.
func (f *fakeS3) list(w http.ResponseWriter, q url.Values) {
	prefix := q.Get("prefix")
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start, _ := strconv.Atoi(q.Get("continuation-token"))
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}
	res := listResult{Name: testBucket, Prefix: prefix, KeyCount: end - start}
	for _, k := range keys[start:end] {
		res.Contents = append(res.Contents, listContent{
			Key:          k,
			LastModified: f.objects[k].UTC().Format("2006-01-02T15:04:05.000Z"),
			Size:         3,
		})
	}
	if end < len(keys) {
		res.IsTruncated = true
		res.NextContinuationToken = strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func newTestStorage(t *testing.T, fc clock.Clock) (*Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]time.Time{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := awss3.New(awss3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		Credentials:      credentials.NewStaticCredentialsProvider("AKIDTEST", "secret", ""),
		RetryMaxAttempts: 1,
	})
	cfg := &Config{Bucket: testBucket}
	cfg.ApplyDefaults()
	return newWithClient(client, cfg, storage.Deps{Clock: fc}), fake
}

func TestSignedURL(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newTestStorage(t, clock.NewFake(now))

	raw, expiresAt, err := s.SignedURL(context.Background(), "tracks/a.mp3", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if !expiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expected expiry now+15m, got %v", expiresAt)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url %q: %v", raw, err)
	}
	if u.Path != "/media/tracks/a.mp3" {
		t.Errorf("unexpected path %q", u.Path)
	}
	q := u.Query()
	if q.Get("X-Amz-Expires") != "900" {
		t.Errorf("expected X-Amz-Expires=900, got %q", q.Get("X-Amz-Expires"))
	}
	if q.Get("X-Amz-Signature") == "" {
		t.Error("expected a signature")
	}
	if q.Get("response-cache-control") != "private, no-transform" {
		t.Errorf("response-cache-control = %q", q.Get("response-cache-control"))
	}
}

func TestSignedURL_RejectsOutOfRangeTTL(t *testing.T) {
	s, _ := newTestStorage(t, nil)
	for _, ttl := range []time.Duration{0, -time.Second, 8 * 24 * time.Hour} {
		if _, _, err := s.SignedURL(context.Background(), "k", ttl); err == nil {
			t.Errorf("expected error for ttl %v", ttl)
		}
	}
}

func TestDelete(t *testing.T) {
	s, fake := newTestStorage(t, nil)
	fake.objects["tracks/a.mp3"] = time.Now()

	if err := s.Delete(context.Background(), "tracks/a.mp3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(fake.deletes) != 1 {
		t.Errorf("expected one DeleteObject call, got %v", fake.deletes)
	}

	err := s.Delete(context.Background(), "tracks/a.mp3")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestWalk_Paginates(t *testing.T) {
	s, fake := newTestStorage(t, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, k := range []string{"tracks/a", "tracks/b", "tracks/c", "tracks/d", "tracks/e", "avatars/x"} {
		fake.objects[k] = base.Add(time.Duration(i) * time.Hour)
	}

	var got []storage.ObjectInfo
	err := s.Walk(context.Background(), "tracks/", func(o storage.ObjectInfo) error {
		got = append(got, o)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 objects across pages, got %d", len(got))
	}
	if got[0].Key != "tracks/a" || !got[0].LastModified.Equal(base) {
		t.Errorf("unexpected first object %+v", got[0])
	}
}

func TestWalk_StopsOnCallbackError(t *testing.T) {
	s, fake := newTestStorage(t, nil)
	fake.objects["tracks/a"] = time.Now()
	fake.objects["tracks/b"] = time.Now()

	stop := errors.New("stop")
	calls := 0
	err := s.Walk(context.Background(), "tracks/", func(storage.ObjectInfo) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("expected walk to stop after first callback, got err=%v calls=%d", err, calls)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Region != DefaultRegion {
		t.Errorf("expected default region, got %q", cfg.Region)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing bucket to fail")
	}
	cfg.Bucket = "media"
	cfg.AccessKey = "only-half"
	if err := cfg.Validate(); err == nil {
		t.Error("expected half-configured credentials to fail")
	}
	cfg.SecretKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
	cfg.Endpoint = "minio:9000"
	if err := cfg.Validate(); err == nil {
		t.Error("expected endpoint without scheme to fail")
	}
}

func TestFactoryRejectsWrongConfigType(t *testing.T) {
	_, err := storage.New(storage.Config{Provider: storage.ProviderS3}, "nope", storage.Deps{})
	if err == nil {
		t.Error("expected error for wrong provider config type")
	}
}
