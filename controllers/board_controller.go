package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// sseHeartbeat is how often an idle event stream sends a keepalive comment
var sseHeartbeat = 30 * time.Second

// GetBoard handles GET /api/v1/board - the last-known workflow board
func GetBoard(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	snapshot, err := registry().Boards.For(actor.LaboratoryID).Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    snapshot,
	})
}

// RefreshBoard handles POST /api/v1/board/refresh - refetches before answering
func RefreshBoard(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	board := registry().Boards.For(actor.LaboratoryID)
	if err := board.Refresh(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	snapshot, err := board.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    snapshot,
	})
}

// StreamEvents handles GET /api/v1/events - a Server-Sent Events stream of
// the caller's laboratory changes. Clients refetch what changed.
func StreamEvents(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	hub := events.GetHub()
	sub := hub.Subscribe(actor.LaboratoryID, 64)
	defer hub.Unsubscribe(sub.ID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Writer.WriteString("event: connected\ndata: {\"subscription_id\":\"" + sub.ID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case change, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(change)
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode change event")
				continue
			}
			c.Writer.WriteString(fmt.Sprintf("event: change\ndata: %s\n\n", data))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
