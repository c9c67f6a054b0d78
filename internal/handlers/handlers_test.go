package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/harentsoaR/clinic-rbac/internal/auth"
	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/metrics"
	"github.com/harentsoaR/clinic-rbac/internal/middleware"
	"github.com/harentsoaR/clinic-rbac/internal/models"
	"github.com/harentsoaR/clinic-rbac/internal/rbac"
	"github.com/harentsoaR/clinic-rbac/internal/services"
	"github.com/harentsoaR/clinic-rbac/internal/store"
	"github.com/harentsoaR/clinic-rbac/internal/utils"
)

type noopNotifier struct{}

func (noopNotifier) PatientAssigned(models.User, models.Patient) {}

type testServer struct {
	router   *gin.Engine
	store    *store.MemoryStore
	registry *services.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.NewMemoryStore()
	log := logger.Discard()
	m := metrics.New()
	signer := utils.NewTokenSigner("handler-test-secret", time.Hour)
	registry := services.NewRegistry(s, rbac.NewAuthorizer(log, m), rbac.NewResolver(s),
		services.NewAssignmentManager(s, log, m, noopNotifier{}), log, bcrypt.MinCost)
	_, err := registry.EnsureAdmin(context.Background(), "Admin", "admin@clinic.test", "admin-password")
	require.NoError(t, err)

	verifier, err := auth.NewCredentialVerifier(s, signer, log, m, bcrypt.MinCost)
	require.NoError(t, err)

	h := NewHandler(registry, verifier, auth.NewTokenValidator(s, signer), log)
	r := gin.New()
	r.Use(middleware.Stack(log, m)...)
	h.RegisterRoutes(r)
	return &testServer{router: r, store: s, registry: registry}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (ts *testServer) register(t *testing.T, token, name string, role models.Role) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/auth/register", token, gin.H{
		"fullName": name,
		"email":    name + "@clinic.test",
		"password": "password123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.User.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSeniorSeesNewlyAssignedDoctor(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@clinic.test", "admin-password")

	seniorID := ts.register(t, adminToken, "senior", models.RoleSeniorDoctor)
	consultingID := ts.register(t, adminToken, "consulting", models.RoleConsultingDoctor)

	w := ts.do(t, http.MethodPost, "/auth/assign-doctor", adminToken, gin.H{
		"consultingDoctorId": consultingID,
		"seniorDoctorId":     seniorID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	seniorToken := ts.login(t, "senior@clinic.test", "password123")
	w = ts.do(t, http.MethodGet, "/auth/users", seniorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Users, 2)
	assert.Equal(t, seniorID, resp.Users[0].ID)
	assert.Equal(t, consultingID, resp.Users[1].ID)

	w = ts.do(t, http.MethodGet, "/auth/me", seniorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	hierarchy := decode(t, w)["hierarchy"].(map[string]any)
	assert.Len(t, hierarchy["consultingDoctors"], 1)
}

func TestMeRequiresValidToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/auth/me", "invalid_token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Basic YWRtaW46YWRtaW4=")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@clinic.test", "admin-password")
	id := ts.register(t, adminToken, "leaver", models.RoleJrDoctor)
	w := ts.do(t, http.MethodPut, "/auth/users/"+id, adminToken, gin.H{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	unknown := ts.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ghost@clinic.test", "password": "password123"})
	wrong := ts.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "admin@clinic.test", "password": "nope-nope"})
	inactive := ts.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "leaver@clinic.test", "password": "password123"})

	for _, w := range []*httptest.ResponseRecorder{unknown, wrong, inactive} {
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, unknown.Body.String(), w.Body.String())
	}
}

func TestDeactivatedUserTokenStopsWorking(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@clinic.test", "admin-password")
	id := ts.register(t, adminToken, "doc", models.RoleConsultingDoctor)
	docToken := ts.login(t, "doc@clinic.test", "password123")

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/auth/me", docToken, nil).Code)
	w := ts.do(t, http.MethodPut, "/auth/users/"+id, adminToken, gin.H{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/auth/me", docToken, nil).Code)
}

func TestRegisterIsAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@clinic.test", "admin-password")
	ts.register(t, adminToken, "desk", models.RoleFrontDeskCoordinator)
	deskToken := ts.login(t, "desk@clinic.test", "password123")

	w := ts.do(t, http.MethodPost, "/auth/register", deskToken, gin.H{
		"fullName": "Valid", "email": "valid@clinic.test", "password": "password123", "role": "admin",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(t, http.MethodPost, "/auth/register", deskToken, gin.H{"garbage": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/register", adminToken, gin.H{"fullName": "No Role", "email": "x@clinic.test", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatientWorkflow(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@clinic.test", "admin-password")
	ts.register(t, adminToken, "desk", models.RoleFrontDeskCoordinator)
	docID := ts.register(t, adminToken, "doc", models.RoleConsultingDoctor)
	otherID := ts.register(t, adminToken, "other", models.RoleConsultingDoctor)
	jrID := ts.register(t, adminToken, "jr", models.RoleJrDoctor)
	deskToken := ts.login(t, "desk@clinic.test", "password123")
	docToken := ts.login(t, "doc@clinic.test", "password123")
	otherToken := ts.login(t, "other@clinic.test", "password123")

	w := ts.do(t, http.MethodPost, "/auth/patients", deskToken, gin.H{"fullName": "Jane Roe", "patientId": "PT-0001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	patientID := decode(t, w)["patient"].(map[string]any)["id"].(string)
	base := "/auth/patients/" + patientID

	w = ts.do(t, http.MethodPost, "/auth/patients", deskToken, gin.H{"fullName": "Dup", "patientId": "PT-0001"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPut, base+"/assign-doctor", docToken, gin.H{"doctorId": docID})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(t, http.MethodPut, base+"/assign-doctor", deskToken, gin.H{"doctorId": jrID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPut, base+"/assign-doctor", deskToken, gin.H{"doctorId": docID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, base, otherToken, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base, docToken, nil).Code)

	w = ts.do(t, http.MethodPut, base, otherToken, gin.H{"notes": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(t, http.MethodPut, base, docToken, gin.H{"notes": "follow up in two weeks"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, base+"/files", docToken, gin.H{"fileName": "scan.pdf", "storageKey": "s3://bucket/scan.pdf"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fileID := decode(t, w)["file"].(map[string]any)["id"].(string)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodDelete, base+"/files/"+fileID, deskToken, nil).Code)

	w = ts.do(t, http.MethodGet, base+"/files", deskToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	for i := 0; i < 2; i++ {
		w = ts.do(t, http.MethodPut, base+"/close-case", docToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, string(models.PatientStatusCaseClosed), decode(t, w)["patient"].(map[string]any)["status"])
	}
	w = ts.do(t, http.MethodPut, base+"/assign-doctor", deskToken, gin.H{"doctorId": otherID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/auth/patients?status=case_closed", docToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
	w = ts.do(t, http.MethodGet, "/auth/patients", otherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["count"])
}

func TestInvalidIDs(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@clinic.test", "admin-password")

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/auth/users/not-an-id", adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/auth/users/64b7f0c2e4b0a1a2b3c4d5e6", adminToken, nil).Code)
	w := ts.do(t, http.MethodPost, "/auth/assign-doctor", adminToken, gin.H{
		"consultingDoctorId": "64b7f0c2e4b0a1a2b3c4d5e6",
		"seniorDoctorId":     "64b7f0c2e4b0a1a2b3c4d5e7",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
