package controllers

import (
	"net/http"
	"time"

	"github.com/dentalflow/dentalflow-api/config"
	"github.com/dentalflow/dentalflow-api/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RecordPaymentRequest represents a payment against an order
type RecordPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method" binding:"required,oneof=cash card transfer check"`
	PaymentDate     *time.Time      `json:"payment_date"`
	ReferenceNumber *string         `json:"reference_number"`
	Notes           *string         `json:"notes"`
}

// ListPayments handles GET /api/v1/orders/:id/payments
func ListPayments(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	payments, err := registry().Payments.List(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payments,
	})
}

// ListPaymentLedger handles GET /api/v1/payments - payments on every order
// the caller can see, read-only for clinics
func ListPaymentLedger(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	payments, err := registry().Payments.Ledger(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payments,
	})
}

// RecordPayment handles POST /api/v1/orders/:id/payments
func RecordPayment(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	result, err := registry().Payments.Record(c.Request.Context(), actor, c.Param("id"), services.PaymentInput{
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		PaymentDate:     req.PaymentDate,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    result,
	})
}

// DeletePayment handles DELETE /api/v1/payments/:id
func DeletePayment(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	result, err := registry().Payments.Delete(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetPaymentSummary handles GET /api/v1/payments/summary?from=YYYY-MM-DD&to=YYYY-MM-DD
// Dates are local calendar days; to is inclusive. Defaults to the last 30 days.
func GetPaymentSummary(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	loc := time.UTC
	if cfg := config.GetConfig(); cfg != nil {
		loc = cfg.Location()
	}
	now := services.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	from := today.AddDate(0, 0, -29)
	to := today
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", "from must be a date in YYYY-MM-DD format"))
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", "to must be a date in YYYY-MM-DD format"))
			return
		}
		to = parsed
	}

	summary, err := registry().Payments.Summary(c.Request.Context(), actor, from, to.AddDate(0, 0, 1))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
	})
}
