package api

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/24ep/studio-sub000/internal/intake"
	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/gin-gonic/gin"
)

func (h *Handler) UploadResume(c *gin.Context) {
	up, file, ok := h.bindUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	up.Source = model.JobSource(c.PostForm("source"))
	up.CandidateID = formValue(c, "candidate_id")
	up.PositionID = formValue(c, "position_id")

	job, err := h.intake.UploadResume(c.Request.Context(), up)
	h.writeJob(c, http.StatusCreated, job, err)
}

func (h *Handler) SubmitImport(c *gin.Context) {
	up, file, ok := h.bindUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	job, err := h.intake.SubmitImport(c.Request.Context(), up)
	h.writeJob(c, http.StatusAccepted, job, err)
}

func (h *Handler) ListJobs(c *gin.Context) {
	filter := model.JobFilter{
		Source:    model.JobSource(c.Query("source")),
		Search:    c.Query("search"),
		CreatedBy: c.Query("created_by"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, model.JobStatus(s))
			}
		}
	}

	page, err := queryInt(c, "page")
	if err != nil {
		h.writeError(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.jobs.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) RetryJob(c *gin.Context) {
	job, err := h.intake.Retry(c.Request.Context(), c.Param("id"))
	h.writeJob(c, http.StatusOK, job, err)
}

func (h *Handler) CancelJob(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Request.Context(), c.Param("id"))
	h.writeJob(c, http.StatusOK, job, err)
}

func (h *Handler) DeleteJob(c *gin.Context) {
	if err := h.jobs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) BulkRetryJobs(c *gin.Context) {
	h.bulkJobs(c, h.intake.RetryBulk)
}

func (h *Handler) BulkCancelJobs(c *gin.Context) {
	h.bulkJobs(c, h.jobs.CancelBulk)
}

func (h *Handler) BulkDeleteJobs(c *gin.Context) {
	h.bulkJobs(c, h.jobs.DeleteBulk)
}

func (h *Handler) bulkJobs(c *gin.Context, op func(ctx context.Context, ids []string) (model.BulkResult, error)) {
	var req model.BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := op(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bindUpload reads the multipart "file" field. On failure the response is
// already written.
func (h *Handler) bindUpload(c *gin.Context) (intake.Upload, multipart.File, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "field": "file"})
		return intake.Upload{}, nil, false
	}
	file, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Str("file_name", header.Filename).Msg("Failed to open uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "file could not be read", "field": "file"})
		return intake.Upload{}, nil, false
	}

	return intake.Upload{
		FileName:    header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		CreatedBy:   actingUser(c),
	}, file, true
}

// writeJob answers with the job, and with the error too when the job was
// recorded as failed.
func (h *Handler) writeJob(c *gin.Context, status int, job *model.Job, err error) {
	if err == nil {
		c.JSON(status, job)
		return
	}
	if job == nil {
		h.writeError(c, err)
		return
	}
	body := errorBody(err)
	body["job"] = job
	c.JSON(statusFor(err), body)
}

func formValue(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(key, raw, "must be an integer")
	}
	return n, nil
}
