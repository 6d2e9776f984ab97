package objectstore

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// fakeBucket is a minimal in-memory S3-compatible server: enough of
// PUT/DELETE/ListObjectsV2 to exercise Client without a real endpoint.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *httptest.Server {
	fb := &fakeBucket{objects: make(map[string][]byte)}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		if r.URL.Query().Get("list-type") == "2" {
			prefix := r.URL.Query().Get("prefix")
			var keys []string
			for k := range fb.objects {
				if strings.HasPrefix(k, prefix) {
					keys = append(keys, k)
				}
			}
			type content struct {
				Key string `xml:"Key"`
			}
			result := struct {
				XMLName     xml.Name `xml:"ListBucketResult"`
				IsTruncated bool     `xml:"IsTruncated"`
				Contents    []content
			}{}
			for _, k := range keys {
				result.Contents = append(result.Contents, content{Key: k})
			}
			w.Header().Set("Content-Type", "application/xml")
			xml.NewEncoder(w).Encode(result)
			return
		}

		key := strings.TrimPrefix(r.URL.Path, "/test-bucket/")
		switch r.Method {
		case http.MethodPut:
			body := make([]byte, r.ContentLength)
			r.Body.Read(body)
			fb.objects[key] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			body, ok := fb.objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(body)
		case http.MethodDelete:
			delete(fb.objects, key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	u, _ := url.Parse(server.URL)
	c, err := New(Config{Endpoint: u.Host, Bucket: "test-bucket", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestUploadThenDelete(t *testing.T) {
	server := newFakeBucket()
	defer server.Close()
	client := testClient(t, server)
	ctx := context.Background()

	ref, err := client.Upload(ctx, "sessions/s1/ch01.mp3", "audio/mpeg", []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref.Key != "sessions/s1/ch01.mp3" {
		t.Errorf("key = %s", ref.Key)
	}

	if err := client.Delete(ctx, "sessions/s1/ch01.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestDownloadRoundTrips(t *testing.T) {
	server := newFakeBucket()
	defer server.Close()
	client := testClient(t, server)
	ctx := context.Background()

	if _, err := client.Upload(ctx, "sessions/s1/seg0.flac", "audio/flac", []byte("flac-bytes")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	body, err := client.Download(ctx, "sessions/s1/seg0.flac")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(body) != "flac-bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestDownloadMissingKeyErrors(t *testing.T) {
	server := newFakeBucket()
	defer server.Close()
	client := testClient(t, server)

	if _, err := client.Download(context.Background(), "sessions/s1/missing.flac"); err == nil {
		t.Fatal("expected an error for a missing key")
	}
}

func TestApplyPrefix(t *testing.T) {
	c := &Client{cfg: Config{Prefix: "audio"}}
	if got := c.applyPrefix("sessions/x"); got != "audio/sessions/x" {
		t.Errorf("applyPrefix = %q", got)
	}
	if got := c.applyPrefix("audio/sessions/x"); got != "audio/sessions/x" {
		t.Errorf("applyPrefix idempotent = %q", got)
	}
}

func TestDeletePrefixesBatchesAcrossPrefixes(t *testing.T) {
	server := newFakeBucket()
	defer server.Close()
	client := testClient(t, server)
	ctx := context.Background()

	client.Upload(ctx, "sessions/s1/segments/a.flac", "", []byte("x"))
	client.Upload(ctx, "sessions/s1/hls/playlist.m3u8", "", []byte("x"))

	result := client.DeletePrefixes(ctx, []string{"sessions/s1/segments", "sessions/s1/hls", "sessions/s1/missing"})
	if result.DeletedKeys != 2 {
		t.Errorf("DeletedKeys = %d, want 2", result.DeletedKeys)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors for empty-but-valid prefixes, got %v", result.Errors)
	}
}
