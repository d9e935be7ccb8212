package api

import (
	"net/http"

	"github.com/24ep/studio-sub000/internal/model"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListStages(c *gin.Context) {
	stages, err := h.stages.List(c.Request.Context(), c.Query("pipeline"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (h *Handler) GetStage(c *gin.Context) {
	stage, err := h.stages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stage)
}

func (h *Handler) CreateStage(c *gin.Context) {
	var req model.StageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	// system stages come from migrations only
	req.IsSystem = false

	stage, err := h.stages.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stage)
}

func (h *Handler) UpdateStage(c *gin.Context) {
	var req model.UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	stage, err := h.stages.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stage)
}

func (h *Handler) DeleteStage(c *gin.Context) {
	if err := h.stages.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MoveStage(c *gin.Context) {
	var req model.MoveStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	stages, err := h.stages.Move(c.Request.Context(), c.Param("id"), req.Order)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (h *Handler) ReorderStages(c *gin.Context) {
	var req model.ReorderStagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	stages, err := h.stages.Reorder(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}
