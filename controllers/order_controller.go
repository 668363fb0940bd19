package controllers

import (
	"net/http"
	"strconv"

	"github.com/dentalflow/dentalflow-api/services"
	"github.com/gin-gonic/gin"
)

// CreateOrderRequest represents a clinical submission: one patient, several teeth
type CreateOrderRequest struct {
	ClinicName    string                  `json:"clinic_name"`
	DoctorName    string                  `json:"doctor_name" binding:"required"`
	DoctorEmail   string                  `json:"doctor_email" binding:"required,email"`
	PatientName   string                  `json:"patient_name" binding:"required"`
	PatientAge    *int                    `json:"patient_age" binding:"omitempty,min=0,max=150"`
	PatientGender *string                 `json:"patient_gender" binding:"omitempty,gender"`
	Currency      string                  `json:"currency" binding:"required,currency"`
	Diagnosis     *string                 `json:"diagnosis"`
	DoctorNotes   *string                 `json:"doctor_notes"`
	Teeth         []services.ToothRequest `json:"teeth" binding:"required,min=1,dive"`
}

// PublicOrderRequest is the anonymous form variant. The clinic is either
// picked from the laboratory's list or typed in.
type PublicOrderRequest struct {
	CreateOrderRequest
	ClinicID *string `json:"clinic_id"`
}

// TransitionOrderRequest represents a status change from the board
type TransitionOrderRequest struct {
	Status         string  `json:"status" binding:"required"`
	ExpectedStatus *string `json:"expected_status"`
	Notes          *string `json:"notes"`
}

func (r CreateOrderRequest) submission(laboratoryID string) services.Submission {
	return services.Submission{
		LaboratoryID:  laboratoryID,
		ClinicName:    r.ClinicName,
		DoctorName:    r.DoctorName,
		DoctorEmail:   r.DoctorEmail,
		PatientName:   r.PatientName,
		PatientAge:    r.PatientAge,
		PatientGender: r.PatientGender,
		Currency:      r.Currency,
		Diagnosis:     r.Diagnosis,
		DoctorNotes:   r.DoctorNotes,
		Teeth:         r.Teeth,
	}
}

// CreateOrder handles POST /api/v1/orders - submits orders for the caller's clinic
func CreateOrder(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}
	if actor.ClinicID == "" {
		c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "Only clinic users can submit orders"))
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	sub := req.submission(actor.LaboratoryID)
	sub.ClinicID = &actor.ClinicID
	sub.SubmittedBy = actor.ID()
	sub.Source = services.SourceClinic

	orders, err := registry().Orders.Submit(c.Request.Context(), sub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    orders,
	})
}

// CreatePublicOrder handles POST /api/v1/public/laboratories/:labID/orders
func CreatePublicOrder(c *gin.Context) {
	var req PublicOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	sub := req.submission(c.Param("labID"))
	if req.ClinicID != nil && *req.ClinicID != "" {
		sub.ClinicID = req.ClinicID
	}
	sub.Source = services.SourcePublic

	orders, err := registry().Orders.Submit(c.Request.Context(), sub)
	if err != nil {
		respondError(c, err)
		return
	}

	numbers := make([]string, 0, len(orders))
	for _, o := range orders {
		numbers = append(numbers, o.OrderNumber)
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"order_numbers": numbers,
		},
	})
}

// ListOrders handles GET /api/v1/orders - lists orders visible to the caller
// Query params: page (default 1), limit (default 10, max 100), status, clinic_id, search
func ListOrders(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	orders, total, err := registry().Orders.List(c.Request.Context(), actor, services.OrderFilter{
		Status:   c.Query("status"),
		ClinicID: c.Query("clinic_id"),
		Search:   c.Query("search"),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	order, err := registry().Orders.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// GetOrderHistory handles GET /api/v1/orders/:id/history - newest first unless ?order=asc
func GetOrderHistory(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	entries, err := registry().Orders.History(c.Request.Context(), actor, c.Param("id"), c.Query("order") == "asc")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
	})
}

// TransitionOrder handles PATCH /api/v1/orders/:id/status (lab users)
func TransitionOrder(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	var req TransitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := registry().Boards.For(actor.LaboratoryID).Transition(c.Request.Context(), actor, services.TransitionRequest{
		OrderID:        c.Param("id"),
		Status:         req.Status,
		ExpectedStatus: req.ExpectedStatus,
		Notes:          req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}
