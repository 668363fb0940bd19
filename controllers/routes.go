package controllers

import (
	"github.com/dentalflow/dentalflow-api/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API under /api/v1. auth guards every route
// except the public laboratory endpoints, which are rate limited instead.
func RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc, publicLimiter *middleware.RateLimiterStore) {
	v1 := router.Group("/api/v1")

	public := v1.Group("/public/laboratories/:labID")
	if publicLimiter != nil {
		public.Use(middleware.RateLimit(publicLimiter))
	}
	{
		public.POST("/orders", CreatePublicOrder)
		public.GET("/services", ListPublicServices)
		public.GET("/clinics", ListPublicClinics)
	}

	api := v1.Group("")
	api.Use(auth)
	{
		api.GET("/laboratory", GetLaboratory)

		api.POST("/orders", CreateOrder)
		api.GET("/orders", ListOrders)
		api.GET("/orders/:id", GetOrder)
		api.GET("/orders/:id/history", GetOrderHistory)
		api.PATCH("/orders/:id/status", middleware.RequireRole(middleware.LabRoles...), TransitionOrder)

		api.GET("/orders/:id/notes", ListNotes)
		api.POST("/orders/:id/notes", CreateNote)
		api.DELETE("/notes/:id", DeleteNote)

		api.GET("/orders/:id/payments", ListPayments)
		api.GET("/payments", ListPaymentLedger)

		api.GET("/orders/:id/files", ListFiles)
		api.POST("/orders/:id/files", UploadFile)
		api.DELETE("/files/:id", DeleteFile)

		lab := api.Group("")
		lab.Use(middleware.RequireRole(middleware.LabRoles...))
		{
			lab.GET("/board", GetBoard)
			lab.POST("/board/refresh", RefreshBoard)
			lab.GET("/events", StreamEvents)

			lab.GET("/dashboard/stats", GetDashboardStats)

			lab.POST("/orders/:id/payments", RecordPayment)
			lab.DELETE("/payments/:id", DeletePayment)
			lab.GET("/payments/summary", GetPaymentSummary)

			lab.POST("/services", CreateService)
			lab.GET("/clinics", ListClinics)
			lab.POST("/clinics", CreateClinic)
			lab.POST("/exchange-rates", CreateExchangeRate)
			lab.PUT("/workflow-steps/:key", UpsertWorkflowStep)
		}

		api.GET("/services", ListServices)
		api.GET("/exchange-rates", ListExchangeRates)
		api.GET("/workflow-steps", ListWorkflowSteps)
	}
}
