package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Write(body)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestS3(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Storage.S3 = config.S3Config{
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "intake",
		Region:    "us-east-1",
	}
	s, err := NewS3Storage(cfg)
	require.NoError(t, err)
	return s, fake
}

func TestS3UploadAndExists(t *testing.T) {
	s, fake := newTestS3(t)
	ctx := context.Background()

	data := []byte("%PDF-1.4 resume")
	require.NoError(t, s.Upload(ctx, "resumes/j1/resume.pdf", bytes.NewReader(data), int64(len(data)), "application/pdf"))

	assert.Equal(t, data, fake.objects["/intake/resumes/j1/resume.pdf"])
	assert.Equal(t, "application/pdf", fake.types["/intake/resumes/j1/resume.pdf"])

	ok, err := s.Exists(ctx, "resumes/j1/resume.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "resumes/other.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3DownloadMissingIsNotFound(t *testing.T) {
	s, _ := newTestS3(t)

	_, err := s.Download(context.Background(), "imports/missing.xlsx")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestS3PresignedGet(t *testing.T) {
	s, _ := newTestS3(t)

	url, err := s.PresignedGet(context.Background(), "resumes/j1/resume.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.Contains(url, "/intake/resumes/j1/resume.pdf"))
	assert.Contains(t, url, "X-Amz-Expires=900")
	assert.Contains(t, url, "X-Amz-Signature=")
}
