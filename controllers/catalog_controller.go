package controllers

import (
	"net/http"
	"time"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateServiceRequest represents a new orderable service
type CreateServiceRequest struct {
	Name           string          `json:"name" binding:"required"`
	Description    *string         `json:"description"`
	Category       *string         `json:"category"`
	PriceGTQ       decimal.Decimal `json:"price_gtq"`
	PriceUSD       decimal.Decimal `json:"price_usd"`
	TurnaroundDays int             `json:"turnaround_days" binding:"required,gt=0"`
}

// CreateClinicRequest represents a new clinic of the caller's laboratory
type CreateClinicRequest struct {
	Name    string  `json:"name" binding:"required"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

// CreateRateRequest represents a new exchange rate version
type CreateRateRequest struct {
	FromCurrency  string          `json:"from_currency" binding:"required,currency"`
	ToCurrency    string          `json:"to_currency" binding:"required,currency"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom *time.Time      `json:"effective_from"`
}

// UpsertStepRequest represents the editable fields of a workflow step
type UpsertStepRequest struct {
	StepName     string  `json:"step_name" binding:"required"`
	SLAHours     float64 `json:"sla_hours"`
	DisplayOrder int     `json:"display_order"`
	ColorClass   string  `json:"color_class"`
	Icon         string  `json:"icon"`
	Active       *bool   `json:"active"`
}

// GetLaboratory handles GET /api/v1/laboratory - the caller's laboratory
func GetLaboratory(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	lab, err := registry().Catalog.Laboratory(c.Request.Context(), actor.LaboratoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": lab})
}

// ListServices handles GET /api/v1/services - active services, or all with ?all=true for lab users
func ListServices(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	all := actor.LabStaff && c.Query("all") == "true"
	list, err := registry().Catalog.Services(c.Request.Context(), actor.LaboratoryID, all)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
}

// CreateService handles POST /api/v1/services (lab admins)
func CreateService(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	svc, err := registry().Catalog.CreateService(c.Request.Context(), actor, services.ServiceInput{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		PriceGTQ:       req.PriceGTQ,
		PriceUSD:       req.PriceUSD,
		TurnaroundDays: req.TurnaroundDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": svc})
}

// ListClinics handles GET /api/v1/clinics
func ListClinics(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	clinics, err := registry().Catalog.Clinics(c.Request.Context(), actor.LaboratoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": clinics})
}

// CreateClinic handles POST /api/v1/clinics (lab admins)
func CreateClinic(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateClinicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	clinic, err := registry().Catalog.CreateClinic(c.Request.Context(), actor, models.Clinic{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": clinic})
}

// ListExchangeRates handles GET /api/v1/exchange-rates
func ListExchangeRates(c *gin.Context) {
	rates, err := registry().Catalog.Rates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rates})
}

// CreateExchangeRate handles POST /api/v1/exchange-rates (lab admins)
func CreateExchangeRate(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	rate, err := registry().Catalog.AddRate(c.Request.Context(), actor, services.RateInput{
		FromCurrency:  req.FromCurrency,
		ToCurrency:    req.ToCurrency,
		Rate:          req.Rate,
		EffectiveFrom: req.EffectiveFrom,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": rate})
}

// ListWorkflowSteps handles GET /api/v1/workflow-steps - every step in display order
func ListWorkflowSteps(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	steps, err := registry().Steps.List(c.Request.Context(), actor.LaboratoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": steps})
}

// UpsertWorkflowStep handles PUT /api/v1/workflow-steps/:key (lab admins)
func UpsertWorkflowStep(c *gin.Context) {
	actor, _, ok := currentActor(c)
	if !ok {
		return
	}

	var req UpsertStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	step, err := registry().Steps.Upsert(c.Request.Context(), actor, models.WorkflowStep{
		StepKey:      c.Param("key"),
		StepName:     req.StepName,
		SLAHours:     req.SLAHours,
		DisplayOrder: req.DisplayOrder,
		ColorClass:   req.ColorClass,
		Icon:         req.Icon,
		Active:       active,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": step})
}

// ListPublicServices handles GET /api/v1/public/laboratories/:labID/services
func ListPublicServices(c *gin.Context) {
	list, err := registry().Catalog.Services(c.Request.Context(), c.Param("labID"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
}

// ListPublicClinics handles GET /api/v1/public/laboratories/:labID/clinics
// Only ids and names are exposed.
func ListPublicClinics(c *gin.Context) {
	clinics, err := registry().Catalog.Clinics(c.Request.Context(), c.Param("labID"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(clinics))
	for _, cl := range clinics {
		out = append(out, gin.H{"id": cl.ID, "name": cl.Name})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}
