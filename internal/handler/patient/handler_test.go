package patient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/handler/health"
	patientHandler "github.com/jwalitptl/patient-records/internal/handler/patient"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/repository/memory"
	"github.com/jwalitptl/patient-records/internal/router"
	"github.com/jwalitptl/patient-records/internal/seed"
	patientService "github.com/jwalitptl/patient-records/internal/service/patient"
)

var testNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Status  int             `json:"-"`
}

func (r Response) IsSuccess() bool {
	return r.Success
}

// Object decodes data as a JSON object.
func (r Response) Object(t *testing.T) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Data, &out))
	return out
}

// List decodes data as a JSON array of objects.
func (r Response) List(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Data, &out))
	return out
}

type testAPI struct {
	engine *gin.Engine
}

// newTestAPI wires the full router over a memory store holding the first
// count sample patients.
func newTestAPI(t *testing.T, count int) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := func() time.Time { return testNow }
	repo := memory.NewPatientRepositoryWithClock(clock)
	if count > 0 {
		require.NoError(t, repo.InsertMany(context.Background(), seed.Patients(testNow.Add(-time.Hour))[:count]))
	}

	svc := patientService.NewService(repo, nil, patientService.WithClock(clock))
	r := router.NewRouter(
		patientHandler.NewHandler(svc),
		health.NewHandler(repo),
		nil,
		router.RouterConfig{CORSConfig: middleware.DefaultCORSConfig()},
	)
	r.Setup()
	return &testAPI{engine: r.Engine()}
}

func (a *testAPI) makeRequest(t *testing.T, method, path string, body interface{}) Response {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	resp.Status = w.Code
	return resp
}

func newPatientBody() map[string]interface{} {
	return map[string]interface{}{
		"firstName":      "Sarah",
		"lastName":       "Wilson",
		"email":          "sarah.wilson@email.com",
		"nearestCity":    "Colombo",
		"assignedDoctor": "Dr. Michael Davis",
		"guardianName":   "Thomas Wilson",
		"lastVisitDate":  "2025-06-06",
	}
}

func TestCreatePatientAllocatesNextCode(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodPost, "/api/patients", newPatientBody())
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "Patient created successfully", resp.Message)

	data := resp.Object(t)
	assert.Equal(t, "P006", data["patientCode"])
	assert.Equal(t, "Sarah Wilson", data["fullName"])
	assert.Equal(t, "Alive", data["status"])
	assert.Equal(t, []interface{}{}, data["allergies"])
}

func TestCreatePatientDuplicateEmail(t *testing.T) {
	api := newTestAPI(t, 5)

	body := newPatientBody()
	body["email"] = "EMMA.WATSON@email.com"
	resp := api.makeRequest(t, http.MethodPost, "/api/patients", body)

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, "email already exists", resp.Error)

	list := api.makeRequest(t, http.MethodGet, "/api/patients", nil)
	assert.Equal(t, float64(5), list.Object(t)["total"])
}

func TestCreatePatientValidation(t *testing.T) {
	api := newTestAPI(t, 0)

	body := newPatientBody()
	delete(body, "firstName")
	body["email"] = "nope"
	resp := api.makeRequest(t, http.MethodPost, "/api/patients", body)

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.Error, "firstName is required")

	var violations []map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &violations))
	assert.Len(t, violations, 2)

	body = newPatientBody()
	body["lastVisitDate"] = "2999-01-01"
	resp = api.makeRequest(t, http.MethodPost, "/api/patients", body)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "lastVisitDate cannot be in the future", resp.Error)
}

func TestCreatePatientMalformedBody(t *testing.T) {
	api := newTestAPI(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request body")
}

func TestListPatientsPaging(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodGet, "/api/patients?page=2&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.Status)

	data := resp.Object(t)
	assert.Equal(t, float64(3), data["totalPages"])
	assert.Equal(t, float64(2), data["currentPage"])
	assert.Equal(t, float64(5), data["total"])

	patients := data["patients"].([]interface{})
	require.Len(t, patients, 2)
	assert.Equal(t, "P003", patients[0].(map[string]interface{})["patientCode"])
	assert.Equal(t, "P002", patients[1].(map[string]interface{})["patientCode"])

	resp = api.makeRequest(t, http.MethodGet, "/api/patients?page=4&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Object(t)["patients"])
}

func TestListPatientsHugePage(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodGet, "/api/patients?page=9223372036854775807&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)

	data := resp.Object(t)
	assert.Empty(t, data["patients"])
	assert.Equal(t, float64(5), data["total"])
	assert.Equal(t, float64(3), data["totalPages"])
}

func TestListPatientsSortByCode(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodGet, "/api/patients?sortBy=patientCode&order=asc&limit=1", nil)
	require.Equal(t, http.StatusOK, resp.Status)

	patients := resp.Object(t)["patients"].([]interface{})
	require.Len(t, patients, 1)
	assert.Equal(t, "P001", patients[0].(map[string]interface{})["patientCode"])
}

func TestListPatientsRejectsBadParams(t *testing.T) {
	api := newTestAPI(t, 5)

	for _, q := range []string{"page=0", "limit=abc", "sortBy=password", "order=up"} {
		resp := api.makeRequest(t, http.MethodGet, "/api/patients?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Status, q)
	}
}

func TestGetPatient(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodGet, "/api/patients/P004", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Maria Garcia", resp.Object(t)["fullName"])

	resp = api.makeRequest(t, http.MethodGet, "/api/patients/P404", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "Patient not found", resp.Error)
}

func TestUpdatePatient(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodPut, "/api/patients/P001", map[string]interface{}{
		"nearestCity": "Matara",
		"medications": []string{"Aspirin"},
	})
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)

	data := resp.Object(t)
	assert.Equal(t, "Matara", data["nearestCity"])
	assert.Equal(t, []interface{}{"Aspirin"}, data["medications"])
	assert.Equal(t, "Harry", data["firstName"])
}

func TestUpdatePatientInvalidStatus(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodPut, "/api/patients/P001", map[string]interface{}{"status": "Zombie"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	get := api.makeRequest(t, http.MethodGet, "/api/patients/P001", nil)
	assert.Equal(t, "Alive", get.Object(t)["status"])
}

func TestUpdatePatientDuplicateCode(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodPut, "/api/patients/P001", map[string]interface{}{"patientCode": "P002"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "patientCode already exists", resp.Error)
}

func TestUpdatePatientsByFirstName(t *testing.T) {
	api := newTestAPI(t, 5)

	// A second Maria who is already stable.
	body := newPatientBody()
	body["firstName"] = "Mariana"
	body["status"] = "Stable"
	created := api.makeRequest(t, http.MethodPost, "/api/patients", body)
	require.Equal(t, http.StatusCreated, created.Status, created.Error)

	resp := api.makeRequest(t, http.MethodPut, "/api/patients/firstname/maria", map[string]interface{}{"status": "Stable"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	assert.Equal(t, "Updated 1 patients", resp.Message)

	data := resp.Object(t)
	assert.Equal(t, float64(2), data["matchedCount"])
	assert.Equal(t, float64(1), data["modifiedCount"])

	resp = api.makeRequest(t, http.MethodPut, "/api/patients/firstname/nobody", map[string]interface{}{"status": "Stable"})
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "No patients found with that first name", resp.Error)
}

func TestDeletePatient(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodDelete, "/api/patients/P002", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "P002", resp.Object(t)["patientCode"])

	resp = api.makeRequest(t, http.MethodDelete, "/api/patients/P002", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	list := api.makeRequest(t, http.MethodGet, "/api/patients", nil)
	assert.Equal(t, float64(4), list.Object(t)["total"])
}

func TestFieldSearches(t *testing.T) {
	api := newTestAPI(t, 5)

	tests := []struct {
		path  string
		count int
	}{
		{"/api/patients/firstname/JO", 1},
		{"/api/patients/lastname/son", 2},
		{"/api/patients/email/email.com", 3},
		{"/api/patients/city/kandy", 2},
		{"/api/patients/doctor/sarah", 2},
		{"/api/patients/guardian/garcia", 1},
		{"/api/patients/city/nowhere", 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := api.makeRequest(t, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, resp.Status, resp.Error)
			assert.Len(t, resp.List(t), tt.count)
			assert.Contains(t, resp.Message, fmt.Sprintf("Found %d patients", tt.count))
		})
	}
}

func TestSearchPatients(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodGet, "/api/search/patients?query=kandy", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, resp.List(t), 2)
	assert.Equal(t, "Found 2 patients matching 'kandy'", resp.Message)

	resp = api.makeRequest(t, http.MethodGet, "/api/search/patients?query=p00&field=patientCode", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, resp.List(t), 5)

	resp = api.makeRequest(t, http.MethodGet, "/api/search/patients", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Search query is required", resp.Error)

	resp = api.makeRequest(t, http.MethodGet, "/api/search/patients?query=x&field=status", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestGetStats(t *testing.T) {
	api := newTestAPI(t, 5)

	resp := api.makeRequest(t, http.MethodGet, "/api/stats/patients", nil)
	require.Equal(t, http.StatusOK, resp.Status)

	data := resp.Object(t)
	assert.Equal(t, float64(5), data["total"])

	cities := data["topCities"].([]interface{})
	top := cities[0].(map[string]interface{})
	assert.Equal(t, "Kandy", top["_id"])
	assert.Equal(t, float64(2), top["count"])
}

func TestUnknownAPIRoute(t *testing.T) {
	api := newTestAPI(t, 0)

	resp := api.makeRequest(t, http.MethodGet, "/api/doctors", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, "Route not found", resp.Error)
}
