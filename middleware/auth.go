package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dentalflow/dentalflow-api/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Roles carried in the token's role claim
const (
	RoleSuperAdmin  = "super_admin"
	RoleLabAdmin    = "lab_admin"
	RoleLabStaff    = "lab_staff"
	RoleClinicAdmin = "clinic_admin"
	RoleClinicStaff = "clinic_staff"
)

// LabRoles may operate the workflow board, payments and reports
var LabRoles = []string{RoleSuperAdmin, RoleLabAdmin, RoleLabStaff}

// ClinicRoles may submit and follow their clinic's orders
var ClinicRoles = []string{RoleClinicAdmin, RoleClinicStaff}

// CustomClaims contains custom data we want from the token.
// Tenant claims are namespaced as required by Auth0 actions.
type CustomClaims struct {
	Scope        string `json:"scope"`
	Role         string `json:"https://dentalflow.app/role"`
	LaboratoryID string `json:"https://dentalflow.app/laboratory_id"`
	ClinicID     string `json:"https://dentalflow.app/clinic_id"`
	Name         string `json:"https://dentalflow.app/name"`
	Email        string `json:"https://dentalflow.app/email"`
}

// Validate does nothing; tenant claims are checked per route.
// It satisfies the validator.CustomClaims interface.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// HasScope checks whether our claims have a specific scope.
func (c CustomClaims) HasScope(expectedScope string) bool {
	result := strings.Split(c.Scope, " ")
	for i := range result {
		if result[i] == expectedScope {
			return true
		}
	}

	return false
}

// Identity is the caller as described by the validated token
type Identity struct {
	UserID       string
	Role         string
	LaboratoryID string
	ClinicID     string
	Name         string
	Email        string
}

// HasRole reports whether the identity holds one of roles
func (i Identity) HasRole(roles ...string) bool {
	if i.Role == "" {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// IsLabUser reports whether the identity belongs to laboratory staff
func (i Identity) IsLabUser() bool {
	return i.HasRole(LabRoles...)
}

// IsClinicUser reports whether the identity belongs to a clinic
func (i Identity) IsClinicUser() bool {
	return i.HasRole(ClinicRoles...)
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
func EnsureValidToken(cfg *config.Config) gin.HandlerFunc {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse the issuer url")
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up the jwt validator")
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Encountered error while validating JWT")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)); writeErr != nil {
			log.Error().Err(writeErr).Msg("Failed to write error response")
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		validated := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			validated = true
			// Store the validated claims in Gin context
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			// Extract user_id from sub claim
			userID := token.RegisteredClaims.Subject
			c.Set("user_id", userID)
			c.Set("validated_claims", token)

			// Keep the raw token for calls to /userinfo
			if raw, err := jwtmiddleware.AuthHeaderTokenExtractor(r); err == nil {
				c.Set("access_token", raw)
			}

			c.Next()
		}

		// Use the JWT middleware to check the token
		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)

		// errorHandler has already written the 401
		if !validated {
			c.Abort()
		}
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetAccessToken extracts the raw bearer token from the Gin context
func GetAccessToken(c *gin.Context) (string, error) {
	token, exists := c.Get("access_token")
	if !exists {
		return "", &AuthError{Code: "MISSING_ACCESS_TOKEN", Message: "Access token not found in context"}
	}

	tokenStr, ok := token.(string)
	if !ok || tokenStr == "" {
		return "", &AuthError{Code: "INVALID_ACCESS_TOKEN", Message: "Access token is not a string"}
	}

	return tokenStr, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get("validated_claims")
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// GetIdentity builds the caller identity from the Gin context. A token
// without custom claims yields an identity with no role.
func GetIdentity(c *gin.Context) (Identity, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return Identity{}, err
	}

	identity := Identity{UserID: userID}
	claims, err := GetClaims(c)
	if err != nil {
		return identity, nil
	}
	custom, ok := claims.CustomClaims.(*CustomClaims)
	if !ok || custom == nil {
		return identity, nil
	}

	identity.Role = custom.Role
	identity.LaboratoryID = custom.LaboratoryID
	identity.ClinicID = custom.ClinicID
	identity.Name = custom.Name
	identity.Email = custom.Email
	return identity, nil
}

// RequireScope is a middleware that checks if the token has a specific scope
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_CLAIMS",
					"message": "Could not retrieve token claims",
				},
			})
			c.Abort()
			return
		}

		customClaims, ok := claims.CustomClaims.(*CustomClaims)
		if !ok || !customClaims.HasScope(scope) {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INSUFFICIENT_SCOPE",
					"message": "Insufficient permissions to access this resource",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireRole is a middleware that admits only identities holding one of
// roles and scoped to a laboratory. A token without a role is denied.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := GetIdentity(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_CLAIMS",
					"message": "Could not retrieve token claims",
				},
			})
			c.Abort()
			return
		}

		if !identity.HasRole(roles...) || identity.LaboratoryID == "" {
			log.Info().Str("user_id", identity.UserID).Str("role", identity.Role).Str("path", c.FullPath()).Msg("Role check denied request")
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INSUFFICIENT_ROLE",
					"message": "Insufficient permissions to access this resource",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
