package patient

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
	"github.com/jwalitptl/patient-records/internal/service/patient"
	"github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{
		service: service,
	}
}

// fieldRoute is one single-attribute search endpoint under /patients.
type fieldRoute struct {
	path    string
	param   string
	field   query.Field
	message string
}

var fieldRoutes = []fieldRoute{
	{"/firstname/:name", "name", query.FieldFirstName, "with first name matching '%s'"},
	{"/lastname/:name", "name", query.FieldLastName, "with last name matching '%s'"},
	{"/email/:email", "email", query.FieldEmail, "with email matching '%s'"},
	{"/city/:city", "city", query.FieldNearestCity, "from city '%s'"},
	{"/doctor/:name", "name", query.FieldAssignedDoctor, "assigned to '%s'"},
	{"/guardian/:name", "name", query.FieldGuardianName, "with guardian '%s'"},
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)

		for _, fr := range fieldRoutes {
			patients.GET(fr.path, h.searchByField(fr))
		}
		patients.PUT("/firstname/:name", h.UpdatePatientsByFirstName)

		patients.GET("/:code", h.GetPatient)
		patients.PUT("/:code", h.UpdatePatient)
		patients.DELETE("/:code", h.DeletePatient)
	}

	r.GET("/search/patients", h.SearchPatients)
	r.GET("/stats/patients", h.GetStats)
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.Validation("Invalid request body", nil))
		return
	}

	p, err := req.ToPatient()
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	created, err := h.service.CreatePatient(c.Request.Context(), p)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, created, "Patient created successfully")
}

func (h *Handler) ListPatients(c *gin.Context) {
	var raw query.RawListParams
	if err := c.ShouldBindQuery(&raw); err != nil {
		httputil.RespondWithError(c, errors.Validation("Invalid query parameters", nil))
		return
	}

	params, err := query.ParseListParams(raw)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	page, err := h.service.ListPatients(c.Request.Context(), params)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, page, "Patients retrieved successfully")
}

func (h *Handler) GetPatient(c *gin.Context) {
	p, err := h.service.GetPatient(c.Request.Context(), c.Param("code"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, p, "Patient retrieved successfully")
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	patch, ok := bindPatch(c)
	if !ok {
		return
	}

	p, err := h.service.UpdatePatient(c.Request.Context(), c.Param("code"), patch)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, p, "Patient updated successfully")
}

func (h *Handler) UpdatePatientsByFirstName(c *gin.Context) {
	patch, ok := bindPatch(c)
	if !ok {
		return
	}

	result, err := h.service.UpdatePatientsByFirstName(c.Request.Context(), c.Param("name"), patch)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result, fmt.Sprintf("Updated %d patients", result.ModifiedCount))
}

// bindPatch decodes an update body. On failure the error response is
// already written.
func bindPatch(c *gin.Context) (*model.PatientPatch, bool) {
	var req model.UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.Validation("Invalid request body", nil))
		return nil, false
	}

	patch, err := req.ToPatch()
	if err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}
	return patch, true
}

func (h *Handler) DeletePatient(c *gin.Context) {
	p, err := h.service.DeletePatient(c.Request.Context(), c.Param("code"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, p, "Patient deleted successfully")
}

func (h *Handler) searchByField(fr fieldRoute) gin.HandlerFunc {
	return func(c *gin.Context) {
		term := c.Param(fr.param)
		patients, err := h.service.SearchByField(c.Request.Context(), fr.field, term)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		msg := fmt.Sprintf("Found %d patients "+fr.message, len(patients), term)
		httputil.RespondWithSuccess(c, patients, msg)
	}
}

func (h *Handler) SearchPatients(c *gin.Context) {
	term := c.Query("query")
	patients, err := h.service.SearchPatients(c.Request.Context(), term, c.DefaultQuery("field", query.FieldAll))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, patients, fmt.Sprintf("Found %d patients matching '%s'", len(patients), term))
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, stats, "Statistics retrieved successfully")
}
