package api

import (
	"net/http"

	"github.com/24ep/studio-sub000/internal/model"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetTransitions(c *gin.Context) {
	history, err := h.ledger.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) AppendTransition(c *gin.Context) {
	var req model.AppendTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	history, err := h.ledger.AppendTransition(c.Request.Context(), model.TransitionInput{
		CandidateID:  c.Param("id"),
		Stage:        req.Stage,
		PositionID:   req.PositionID,
		Notes:        req.Notes,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, history)
}

func (h *Handler) BulkTransition(c *gin.Context) {
	var req model.BulkTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.ledger.AppendBulk(c.Request.Context(), req.CandidateIDs, req.Stage, req.Notes, actingUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) UpdateTransitionNotes(c *gin.Context) {
	var req model.UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	tr, err := h.ledger.UpdateNotes(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (h *Handler) DeleteTransition(c *gin.Context) {
	if err := h.ledger.DeleteTransition(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
