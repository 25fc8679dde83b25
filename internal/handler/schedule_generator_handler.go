package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusops/timetable-engine/internal/dto"
	"github.com/campusops/timetable-engine/internal/models"
	"github.com/campusops/timetable-engine/internal/service"
	appErrors "github.com/campusops/timetable-engine/pkg/errors"
	"github.com/campusops/timetable-engine/pkg/response"
)

const (
	maxStudyPlans = 128
)

type schedulePreviewResponse struct {
	Mode     string                        `json:"mode"`
	Proposal *dto.GenerateScheduleResponse `json:"proposal"`
}

type scheduleGenerator interface {
	Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error)
	Save(ctx context.Context, req dto.SaveScheduleRequest) (string, error)
	List(ctx context.Context, query dto.SemesterScheduleQuery) ([]models.SemesterSchedule, error)
	GetSlots(ctx context.Context, id string) ([]models.SemesterScheduleSlot, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id string, format service.ExportFormat) ([]byte, string, error)
	ExportLink(ctx context.Context, id string, format service.ExportFormat) (string, time.Time, error)
	ResolveDownload(token string) ([]byte, string, error)
}

// ScheduleGeneratorHandler exposes scheduler endpoints.
type ScheduleGeneratorHandler struct {
	service scheduleGenerator
}

// NewScheduleGeneratorHandler constructs the handler.
func NewScheduleGeneratorHandler(svc *service.ScheduleGeneratorService) *ScheduleGeneratorHandler {
	return &ScheduleGeneratorHandler{service: svc}
}

// Generate godoc
// @Summary Generate conflict-free schedule proposal (legacy endpoint)
// @Description Legacy path kept for backward compatibility. Prefer /schedules/generator for new integrations.
// @Tags Academics
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generate schedule payload"
// @Success 200 {object} response.Envelope
// @Router /schedule/generate [post]
func (h *ScheduleGeneratorHandler) Generate(c *gin.Context) {
	h.handleGenerate(c)
}

// GenerateAlias godoc
// @Summary Generate schedule proposal (canonical alias)
// @Description Preferred endpoint for UI preview mode. Responses include mode metadata to distinguish preview vs. persisted schedules.
// @Tags Academics
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generate schedule payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/generator [post]
func (h *ScheduleGeneratorHandler) GenerateAlias(c *gin.Context) {
	h.handleGenerate(c)
}

// Save godoc
// @Summary Save schedule proposal to semester schedules
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.SaveScheduleRequest true "Save schedule payload"
// @Success 201 {object} response.Envelope
// @Router /schedule/save [post]
func (h *ScheduleGeneratorHandler) Save(c *gin.Context) {
	var req dto.SaveScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	id, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"scheduleId": id})
}

// List godoc
// @Summary List semester schedules for class-term
// @Tags Scheduler
// @Produce json
// @Param termId query string true "Term ID"
// @Param classId query string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /semester-schedule [get]
func (h *ScheduleGeneratorHandler) List(c *gin.Context) {
	query := dto.SemesterScheduleQuery{
		TermID:  c.Query("termId"),
		ClassID: c.Query("classId"),
	}
	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Slots godoc
// @Summary Get slots for a semester schedule
// @Tags Scheduler
// @Produce json
// @Param id path string true "Semester schedule ID"
// @Success 200 {object} response.Envelope
// @Router /semester-schedule/{id}/slots [get]
func (h *ScheduleGeneratorHandler) Slots(c *gin.Context) {
	slots, err := h.service.GetSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Delete godoc
// @Summary Delete draft semester schedule
// @Tags Scheduler
// @Param id path string true "Semester schedule ID"
// @Success 204
// @Router /semester-schedule/{id} [delete]
func (h *ScheduleGeneratorHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export a semester schedule as CSV or PDF
// @Tags Scheduler
// @Produce octet-stream
// @Param id path string true "Semester schedule ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /semester-schedule/{id}/export [get]
func (h *ScheduleGeneratorHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	body, contentType, err := h.service.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

// ExportLink godoc
// @Summary Get a signed, expiring download link for a schedule export
// @Tags Scheduler
// @Produce json
// @Param id path string true "Semester schedule ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {object} response.Envelope
// @Router /semester-schedule/{id}/export-link [get]
func (h *ScheduleGeneratorHandler) ExportLink(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	token, expiresAt, err := h.service.ExportLink(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token, "expiresAt": expiresAt}, nil)
}

// Download godoc
// @Summary Download a previously exported schedule file by signed token
// @Tags Scheduler
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /downloads/{token} [get]
func (h *ScheduleGeneratorHandler) Download(c *gin.Context) {
	body, contentType, err := h.service.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

func (h *ScheduleGeneratorHandler) handleGenerate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	if err := validateGenerateAliasRequest(req); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := schedulePreviewResponse{
		Mode:     "preview",
		Proposal: result,
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

func validateGenerateAliasRequest(req dto.GenerateScheduleRequest) error {
	if len(req.StudyPlans) > maxStudyPlans {
		return appErrors.Clone(appErrors.ErrValidation, "studyPlans exceeds supported limit")
	}
	return nil
}
