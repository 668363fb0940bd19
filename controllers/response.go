package controllers

import (
	"errors"
	"net/http"

	"github.com/dentalflow/dentalflow-api/middleware"
	"github.com/dentalflow/dentalflow-api/services"
	"github.com/dentalflow/dentalflow-api/utils"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError writes the error envelope for err, choosing the status from its type
func respondError(c *gin.Context, err error) {
	var (
		vErr      *workflow.ValidationError
		cfgErr    *workflow.ConfigurationError
		cErr      *workflow.ConcurrencyError
		ioErr     *workflow.TransientIOError
		nfErr     *workflow.NotFoundError
		fbErr     *workflow.ForbiddenError
		uploadErr *utils.FileUploadError
	)

	switch {
	case errors.As(err, &vErr):
		body := gin.H{"code": vErr.Code, "message": vErr.Message}
		if vErr.Field != "" {
			body["details"] = gin.H{"field": vErr.Field}
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": body})
	case errors.As(err, &uploadErr):
		c.JSON(http.StatusBadRequest, errorBody(uploadErr.Code, uploadErr.Message))
	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, errorBody(workflow.CodeNotFound, nfErr.Error()))
	case errors.As(err, &fbErr):
		c.JSON(http.StatusForbidden, errorBody(workflow.CodeForbidden, fbErr.Message))
	case errors.As(err, &cErr):
		c.JSON(http.StatusConflict, errorBody(cErr.Code, cErr.Message))
	case errors.As(err, &cfgErr):
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("Configuration error")
		c.JSON(http.StatusUnprocessableEntity, errorBody(cfgErr.Code, cfgErr.Message))
	case errors.As(err, &ioErr):
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Store unavailable")
		c.JSON(http.StatusServiceUnavailable, errorBody(workflow.CodeUnavailable, "Service temporarily unavailable, please retry"))
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "Internal server error"))
	}
}

func errorBody(code, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondValidation reports a request that failed binding
func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    workflow.CodeValidation,
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// currentActor builds the service actor from the validated token. It writes
// a 401 and returns false when the request carries no identity.
func currentActor(c *gin.Context) (services.Actor, string, bool) {
	identity, err := middleware.GetIdentity(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "Could not extract user information"))
		return services.Actor{}, "", false
	}

	token, _ := middleware.GetAccessToken(c)
	actor := services.Actor{
		UserID:       identity.UserID,
		Name:         identity.Name,
		Email:        identity.Email,
		LaboratoryID: identity.LaboratoryID,
		LabStaff:     identity.IsLabUser(),
		Admin:        identity.HasRole(middleware.RoleLabAdmin, middleware.RoleSuperAdmin),
	}
	if identity.IsClinicUser() {
		actor.ClinicID = identity.ClinicID
	}
	return actor, token, true
}

func registry() *services.Registry {
	return services.GetRegistry()
}
