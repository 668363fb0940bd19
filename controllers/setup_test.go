package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dentalflow/dentalflow-api/config"
	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/middleware"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv is a registry over an in-memory database holding one laboratory,
// one clinic, one service and the default workflow steps
type testEnv struct {
	db     *gorm.DB
	hub    *events.Hub
	blobs  *services.MockBlobStore
	reg    *services.Registry
	lab    models.Laboratory
	clinic models.Clinic
	crown  models.LabService
	now    time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := config.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// setupMockAuth0Server creates a mock HTTP server that simulates Auth0's /userinfo endpoint
func setupMockAuth0Server(userInfoMap map[string]*services.Auth0UserInfo) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if len(authHeader) < 7 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		userInfo, exists := userInfoMap[authHeader[7:]]
		if !exists {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userInfo)
	}))
}

func newTestEnv(t *testing.T, profiles services.UserInfoProvider) *testEnv {
	t.Helper()
	env := &testEnv{
		db:    setupTestDB(t),
		hub:   events.NewHub(),
		blobs: services.NewMockBlobStore(),
		now:   time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	t.Cleanup(services.SetClock(func() time.Time { return env.now }))

	env.reg = services.NewRegistry(services.Dependencies{
		DB:       env.db,
		Hub:      env.hub,
		Blobs:    env.blobs,
		Profiles: profiles,
	})
	services.SetRegistry(env.reg)
	events.SetHub(env.hub)
	t.Cleanup(func() {
		env.reg.Orders.WaitNotifications()
		services.SetRegistry(nil)
	})

	ctx := context.Background()
	lab, _, err := env.reg.Catalog.EnsureLaboratory(ctx, models.Laboratory{Name: "Laboratorio Dental Central", Country: "GT"})
	require.NoError(t, err)
	env.lab = *lab

	env.clinic = models.Clinic{LaboratoryID: env.lab.ID, Name: "Clínica Sonrisas", Active: true}
	require.NoError(t, env.db.Create(&env.clinic).Error)

	env.crown = models.LabService{
		LaboratoryID:   env.lab.ID,
		Name:           "Corona de zirconio",
		PriceGTQ:       decimal.RequireFromString("850.00"),
		PriceUSD:       decimal.RequireFromString("110.00"),
		TurnaroundDays: 5,
		Active:         true,
	}
	require.NoError(t, env.db.Create(&env.crown).Error)
	return env
}

// mockAuthMiddleware simulates the Auth0 JWT middleware for testing.
// Lab roles are scoped to env's laboratory, clinic roles to its clinic too.
func (env *testEnv) mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Set("access_token", accessToken)

		customClaims := &middleware.CustomClaims{
			Role:         role,
			LaboratoryID: env.lab.ID,
		}
		if role == middleware.RoleClinicAdmin || role == middleware.RoleClinicStaff {
			customClaims.ClinicID = env.clinic.ID
		}

		c.Set("validated_claims", &validator.ValidatedClaims{
			CustomClaims: customClaims,
		})
		c.Next()
	}
}

// router mounts every route behind a mock token for auth0ID and role
func (env *testEnv) router(auth0ID, role string) *gin.Engine {
	router := setupTestRouter()
	RegisterRoutes(router, env.mockAuthMiddleware(auth0ID, role, "test_token"), nil)
	return router
}

// submit creates orders for env's clinic, one per tooth
func (env *testEnv) submit(t *testing.T, teeth ...string) []models.Order {
	t.Helper()
	clinicID := env.clinic.ID
	req := make([]services.ToothRequest, 0, len(teeth))
	for _, n := range teeth {
		req = append(req, services.ToothRequest{ToothNumber: n, ServiceID: env.crown.ID, ConditionType: models.ConditionCrown})
	}
	orders, err := env.reg.Orders.Submit(context.Background(), services.Submission{
		LaboratoryID: env.lab.ID,
		ClinicID:     &clinicID,
		DoctorName:   "Dra. Méndez",
		DoctorEmail:  "dra.mendez@sonrisas.gt",
		PatientName:  "Luis Gómez",
		Currency:     models.CurrencyGTQ,
		Teeth:        req,
		Source:       services.SourceClinic,
	})
	require.NoError(t, err)
	return orders
}

// doJSON performs a request with an optional JSON body and decodes the envelope
func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	}
	return w, response
}

// errorCode extracts error.code from an error envelope
func errorCode(response map[string]interface{}) string {
	errObj, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}
