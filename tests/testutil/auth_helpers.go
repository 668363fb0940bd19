package testutil

import (
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dentalflow/dentalflow-api/middleware"
	"github.com/gin-gonic/gin"
)

// Identity describes the token a mocked request carries
type Identity struct {
	Subject      string
	Role         string
	LaboratoryID string
	ClinicID     string
	Name         string
	Scopes       []string
}

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(id Identity) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  "https://dentalflow-test.auth0.local/",
			Subject: id.Subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope:        strings.Join(id.Scopes, " "),
			Role:         id.Role,
			LaboratoryID: id.LaboratoryID,
			ClinicID:     id.ClinicID,
			Name:         id.Name,
		},
	}
}

// SetMockAuthContext sets up a mock authenticated context for testing
func SetMockAuthContext(c *gin.Context, id Identity) {
	c.Set("user_id", id.Subject)
	c.Set("access_token", "test_token_"+id.Subject)
	c.Set("validated_claims", MockValidatedClaims(id))
}

// MockAuthMiddleware stands in for EnsureValidToken, authenticating every
// request as id
func MockAuthMiddleware(id Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c, id)
		c.Next()
	}
}

// CreateTestContext creates a test Gin context
func CreateTestContext() (*gin.Context, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	c, engine := gin.CreateTestContext(nil)
	return c, engine
}
