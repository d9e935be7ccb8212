package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/intake"
	"github.com/24ep/studio-sub000/internal/jobs"
	"github.com/24ep/studio-sub000/internal/ledger"
	"github.com/24ep/studio-sub000/internal/model"
	"github.com/24ep/studio-sub000/internal/notify"
	"github.com/24ep/studio-sub000/internal/stages"
	intaketest "github.com/24ep/studio-sub000/internal/testing"
	"github.com/24ep/studio-sub000/internal/webhook"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueue struct {
	pushed []model.ImportMessage
}

func (q *stubQueue) EnqueueImport(ctx context.Context, msg model.ImportMessage) error {
	q.pushed = append(q.pushed, msg)
	return nil
}

func (q *stubQueue) Depth(ctx context.Context) (int64, int64, error) {
	return int64(len(q.pushed)), 0, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, p webhook.Payload) (bool, error) {
	return false, nil
}

type testServer struct {
	router *gin.Engine
	ledger *ledger.Ledger
	queue  *stubQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := intaketest.CreateTestDB(t)
	cfg := &config.Config{}
	cfg.App.Name = "intake"
	cfg.Intake = config.IntakeConfig{
		MaxUploadSize:     1 << 20,
		AllowedExtensions: []string{".pdf"},
		DefaultPageSize:   20,
		MaxPageSize:       100,
		BulkConcurrency:   2,
		ImportKeyPrefix:   "imports",
		ResumeKeyPrefix:   "resumes",
		MaxImportRows:     100,
	}

	hub := notify.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	queue := &stubQueue{}
	manager := jobs.NewManager(db.NewJobRepository(conn), hub, cfg.Intake)
	stageStore := db.NewStageStore(conn)
	ldg := ledger.NewLedger(db.NewLedgerStore(conn), stageStore, cfg.Intake)
	svc := intake.NewService(manager, ldg, intaketest.NewMemoryStorage(), queue, stubDispatcher{}, cfg.Intake)
	engine := stages.NewEngine(stageStore, model.DefaultPipeline)

	router := gin.New()
	router.Use(RecoveryMiddleware())
	router.Use(CORSMiddleware(nil))
	SetupRoutes(router, NewHandler(manager, svc, ldg, engine, conn, queue, hub, cfg), hub)

	return &testServer{router: router, ledger: ldg, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, path, fileName string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", "u-1")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthReportsDatabaseAndQueue(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.Contains(t, body, "queue")
	assert.EqualValues(t, 0, body["websocket_clients"])
}

func TestUploadResumeEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "/api/v1/jobs/uploads", "cv.pdf", []byte("%PDF-1.7"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decode[model.Job](t, rec)
	assert.Equal(t, model.JobStatusSuccess, job.Status)
	require.NotNil(t, job.CreatedBy)
	assert.Equal(t, "u-1", *job.CreatedBy)

	rec = s.upload(t, "/api/v1/jobs/uploads", "cv.exe", []byte("MZ"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file", decode[map[string]any](t, rec)["field"])

	rec = s.do(t, http.MethodPost, "/api/v1/jobs/uploads", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitImportEndpointQueuesJob(t *testing.T) {
	s := newTestServer(t)

	data := intaketest.Workbook(t, [][]string{{"Name", "Email"}, {"Ada Lovelace", "ada@example.com"}})
	rec := s.upload(t, "/api/v1/jobs/imports", "people.xlsx", data, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	job := decode[model.Job](t, rec)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	require.Len(t, s.queue.pushed, 1)
	assert.Equal(t, job.ID, s.queue.pushed[0].JobID)
}

func TestJobEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "/api/v1/jobs/uploads", "cv.pdf", []byte("%PDF-1.7"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	job := decode[model.Job](t, rec)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?status=success,error&page_size=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[model.JobPage](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.PageSize)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?page=two", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "success", decode[map[string]any](t, rec)["current"])

	rec = s.do(t, http.MethodPost, "/api/v1/jobs/missing/retry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/jobs/bulk/cancel", model.BulkIDsRequest{IDs: []string{job.ID, "missing"}})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[model.BulkResult](t, rec)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 2, result.FailCount)

	rec = s.do(t, http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTransitionEndpoints(t *testing.T) {
	s := newTestServer(t)
	c, err := s.ledger.Admit(context.Background(), model.Candidate{Name: "Ada Lovelace"}, "", nil, nil)
	require.NoError(t, err)
	base := "/api/v1/candidates/" + c.ID + "/transitions"

	rec := s.do(t, http.MethodPost, base, model.AppendTransitionRequest{Stage: "Screening"}, "X-User-ID", "u-9")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	history := decode[[]model.Transition](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "Screening", history[0].Stage)
	require.NotNil(t, history[0].ActingUserID)
	assert.Equal(t, "u-9", *history[0].ActingUserID)

	rec = s.do(t, http.MethodPost, base, model.AppendTransitionRequest{Stage: "Nowhere"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/candidates/ghost/transitions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	notes := "Great call"
	rec = s.do(t, http.MethodPatch, "/api/v1/transitions/"+history[0].ID, model.UpdateNotesRequest{Notes: &notes})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notes, *decode[model.Transition](t, rec).Notes)

	rec = s.do(t, http.MethodDelete, "/api/v1/transitions/"+history[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Transition](t, rec), 1)

	rec = s.do(t, http.MethodPost, "/api/v1/candidates/transitions/bulk",
		model.BulkTransitionRequest{CandidateIDs: []string{c.ID, "ghost"}, Stage: "Offer"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[model.BulkResult](t, rec)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailCount)
}

func TestStageEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/stages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	seeded := decode[[]model.Stage](t, rec)
	require.Len(t, seeded, 6)

	rec = s.do(t, http.MethodPost, "/api/v1/stages", model.StageInput{Name: "Assessment", IsSystem: true})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.Stage](t, rec)
	assert.Equal(t, 6, created.SortOrder)
	assert.False(t, created.IsSystem)

	rec = s.do(t, http.MethodPost, "/api/v1/stages/"+created.ID+"/move", model.MoveStageRequest{Order: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decode[[]model.Stage](t, rec)
	assert.Equal(t, created.ID, moved[1].ID)

	ids := make([]string, 0, len(moved))
	for i := len(moved) - 1; i >= 0; i-- {
		ids = append(ids, moved[i].ID)
	}
	rec = s.do(t, http.MethodPut, "/api/v1/stages/order", model.ReorderStagesRequest{IDs: ids})
	require.Equal(t, http.StatusOK, rec.Code)
	reordered := decode[[]model.Stage](t, rec)
	assert.Equal(t, ids[0], reordered[0].ID)

	name := "Take-home"
	rec = s.do(t, http.MethodPatch, "/api/v1/stages/"+created.ID, model.UpdateStageRequest{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/stages/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Take-home", decode[model.Stage](t, rec).Name)

	rec = s.do(t, http.MethodGet, "/api/v1/stages/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/stages/stage-applied", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/stages/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.NewValidationError("f", 1, "bad"), http.StatusBadRequest},
		{apperrors.NewNotFoundError("job", "x"), http.StatusNotFound},
		{apperrors.ConflictError{Entity: "job", ID: "x", Current: "success", Target: "cancelled"}, http.StatusConflict},
		{apperrors.NewDependencyError("webhook", errors.New("timeout")), http.StatusBadGateway},
		{apperrors.NewPersistenceError("tx", errors.New("deadlock")), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}

	body := errorBody(apperrors.NewPersistenceError("tx", errors.New("deadlock")))
	assert.False(t, strings.Contains(body["error"].(string), "deadlock"), "internal details stay in the logs")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
