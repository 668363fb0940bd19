package controllers

import (
	"net/http"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/gin-gonic/gin"
)

// GetDashboardStats handles GET /api/v1/dashboard/stats?currency=GTQ|USD
func GetDashboardStats(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	report, err := registry().Dashboard.Report(c.Request.Context(), actor.LaboratoryID, c.DefaultQuery("currency", models.CurrencyGTQ))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}
