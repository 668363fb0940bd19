package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadFile handles POST /api/v1/orders/:id/files - multipart field "file"
func UploadFile(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("MISSING_FILE", "A file is required in the 'file' field"))
		return
	}

	file, err := registry().Files.Upload(c.Request.Context(), actor, c.Param("id"), fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    file,
	})
}

// ListFiles handles GET /api/v1/orders/:id/files - attachments with presigned URLs
func ListFiles(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	files, err := registry().Files.List(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    files,
	})
}

// DeleteFile handles DELETE /api/v1/files/:id
func DeleteFile(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	if err := registry().Files.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "File deleted",
	})
}
