package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/model"
	intaketest "github.com/24ep/studio-sub000/internal/testing"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver string

func (s staticResolver) Resolve(ctx context.Context) string { return string(s) }

type recorded struct {
	jobID    string
	payload  string
	response string
}

type memoryRecorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (m *memoryRecorder) RecordWebhook(ctx context.Context, jobID string, payload, response *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recorded{jobID: jobID, payload: *payload, response: *response})
	return nil
}

func strPtr(s string) *string { return &s }

func storedJob() *model.Job {
	return &model.Job{
		ID:          "job-42",
		FileName:    "resume.pdf",
		FileSize:    1024,
		FilePath:    strPtr("resumes/job-42/resume.pdf"),
		ContentType: strPtr("application/pdf"),
		Source:      model.JobSourceSingle,
		CandidateID: strPtr("cand-7"),
		PositionID:  strPtr("pos-3"),
	}
}

func newDispatcher(url string, cfg config.WebhookConfig, rec Recorder) *Dispatcher {
	return NewDispatcher(staticResolver(url), NewClient(cfg), intaketest.NewMemoryStorage(), rec, 10*time.Minute)
}

func TestDispatchSkipsWithoutEndpoint(t *testing.T) {
	rec := &memoryRecorder{}
	d := newDispatcher("", config.WebhookConfig{}, rec)

	sent, err := d.Dispatch(context.Background(), NewResumeUpload(storedJob(), nil))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, rec.calls)
}

func TestDispatchRecordsPayloadAndResponse(t *testing.T) {
	var received Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		io.WriteString(w, `{"accepted":true}`)
	}))
	defer server.Close()

	rec := &memoryRecorder{}
	d := newDispatcher(server.URL, config.WebhookConfig{}, rec)

	candidate := &model.Candidate{ID: "cand-7", Name: "Ada Lovelace"}
	sent, err := d.Dispatch(context.Background(), NewResumeUpload(storedJob(), candidate))
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Equal(t, PayloadVersion, received.Version)
	assert.Equal(t, KindResumeUpload, received.Kind)
	assert.Equal(t, "resumes/job-42/resume.pdf", received.File.Key)
	assert.Contains(t, received.File.URL, "resumes/job-42/resume.pdf")
	require.NotNil(t, received.Candidate)
	assert.Equal(t, "Ada Lovelace", *received.Candidate.Name)
	assert.Equal(t, "pos-3", *received.PositionID)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "job-42", rec.calls[0].jobID)
	assert.Equal(t, `{"accepted":true}`, rec.calls[0].response)
	assert.Contains(t, rec.calls[0].payload, `"kind":"resume_upload"`)
}

func TestDispatchNon2xxIsDependencyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	}))
	defer server.Close()

	rec := &memoryRecorder{}
	d := newDispatcher(server.URL, config.WebhookConfig{}, rec)

	sent, err := d.Dispatch(context.Background(), NewCandidateCreation(storedJob()))
	assert.True(t, sent)

	var depErr apperrors.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, http.StatusBadGateway, depErr.StatusCode)
	assert.ErrorIs(t, err, apperrors.ErrWebhookUnavailable)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "upstream down", rec.calls[0].response)
}

func TestDispatchTimeoutIsRecorded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	rec := &memoryRecorder{}
	d := newDispatcher(server.URL, config.WebhookConfig{Timeout: 50 * time.Millisecond}, rec)

	_, err := d.Dispatch(context.Background(), NewResumeUpload(storedJob(), nil))
	assert.True(t, apperrors.IsDependency(err))

	require.Len(t, rec.calls, 1)
	assert.NotEmpty(t, rec.calls[0].response, "failure reason stands in for the response")
}

func TestClientTruncatesLongResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer server.Close()

	c := NewClient(config.WebhookConfig{MaxResponseLen: 10})
	body, err := c.Post(context.Background(), server.URL, []byte(`{}`))
	require.NoError(t, err)
	assert.Len(t, body, 10)
}

func TestBulkImportPayload(t *testing.T) {
	job := storedJob()
	job.Source = model.JobSourceBulk
	job.CandidateID = nil

	p := NewBulkImport(job, model.ImportSummary{JobID: job.ID, Total: 5, Created: 4, Failed: 1})
	assert.Equal(t, KindBulkImport, p.Kind)
	assert.Nil(t, p.Candidate)
	require.NotNil(t, p.Import)
	assert.Equal(t, 4, p.Import.Created)
}

func TestRequiresDelivery(t *testing.T) {
	assert.True(t, RequiresDelivery(model.JobSourceAutomation))
	assert.False(t, RequiresDelivery(model.JobSourceSingle))
	assert.False(t, RequiresDelivery(model.JobSourceBulk))
}

func TestURLResolverFallsBackThroughSettings(t *testing.T) {
	conn := intaketest.CreateTestDB(t)
	settings := db.NewSettingsRepository(conn)
	ctx := context.Background()

	r := NewURLResolver(settings, " https://env.example/hook ")
	assert.Equal(t, "https://env.example/hook", r.Resolve(ctx))

	require.NoError(t, settings.PutSetting(ctx, db.SettingWebhookURL, "https://settings.example/hook"))
	assert.Equal(t, "https://settings.example/hook", r.Resolve(ctx))

	require.NoError(t, settings.PutSetting(ctx, db.SettingWebhookURL, ""))
	assert.Equal(t, "https://env.example/hook", r.Resolve(ctx))

	assert.Equal(t, "", NewURLResolver(settings, "").Resolve(ctx))
}
