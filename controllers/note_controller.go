package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateNoteRequest represents the request body for adding a note to an order
type CreateNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

// CreateNote handles POST /api/v1/orders/:id/notes - adds a note to an order
// visible to the caller
func CreateNote(c *gin.Context) {
	actor, token, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	note, err := registry().Notes.Create(c.Request.Context(), actor, c.Param("id"), req.Note, token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    note,
	})
}

// ListNotes handles GET /api/v1/orders/:id/notes - the order's conversation, oldest first
func ListNotes(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	notes, err := registry().Notes.List(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    notes,
	})
}

// DeleteNote handles DELETE /api/v1/notes/:id - authors only
func DeleteNote(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	if err := registry().Notes.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Note deleted",
	})
}
