package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campusops/timetable-engine/internal/dto"
	"github.com/campusops/timetable-engine/internal/models"
	"github.com/campusops/timetable-engine/internal/service"
)

type scheduleGeneratorMock struct {
	captured dto.GenerateScheduleRequest
}

func (m *scheduleGeneratorMock) Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	m.captured = req
	return &dto.GenerateScheduleResponse{ProposalID: "proposal-1"}, nil
}

func (m *scheduleGeneratorMock) Save(ctx context.Context, req dto.SaveScheduleRequest) (string, error) {
	return "", nil
}

func (m *scheduleGeneratorMock) List(ctx context.Context, query dto.SemesterScheduleQuery) ([]models.SemesterSchedule, error) {
	return nil, nil
}

func (m *scheduleGeneratorMock) GetSlots(ctx context.Context, id string) ([]models.SemesterScheduleSlot, error) {
	return nil, nil
}

func (m *scheduleGeneratorMock) Delete(ctx context.Context, id string) error {
	return nil
}

func (m *scheduleGeneratorMock) Export(ctx context.Context, id string, format service.ExportFormat) ([]byte, string, error) {
	return nil, "", nil
}

func (m *scheduleGeneratorMock) ExportLink(ctx context.Context, id string, format service.ExportFormat) (string, time.Time, error) {
	return "", time.Time{}, nil
}

func (m *scheduleGeneratorMock) ResolveDownload(token string) ([]byte, string, error) {
	return nil, "", nil
}

func TestScheduleGeneratorAliasSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &scheduleGeneratorMock{}
	handler := &ScheduleGeneratorHandler{service: mockSvc}
	payload := []byte(`{
		"termId": "2025",
		"classId": "10A",
		"rooms": [{"id":"H1","type":"hall","capacity":120,"availability":[{"day":"SUNDAY","startHour":9,"endHour":13}]}],
		"staff": [{"id":"L1","name":"Dr. Amin","variant":"lecturer","degree":"PROFESSOR","preferences":[{"day":"SUNDAY","startHour":9,"endHour":13}]}],
		"studyPlans": [{
			"id":"SP1","academicListId":"CS2","academicListName":"CS Year 2","academicLevel":2,"expectedStudents":90,
			"courseAssignments":[{
				"courseCode":"CS201","courseName":"Algorithms","lectureGroups":1,"labGroups":0,
				"lecturers":[{"staffId":"L1","numGroups":1}],"teachingAssistants":[]
			}]
		}]
	}`)
	req, _ := http.NewRequest(http.MethodPost, "/schedules/generator", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.GenerateAlias(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "2025", mockSvc.captured.TermID)
	require.Equal(t, "10A", mockSvc.captured.ClassID)
}

func TestScheduleGeneratorAliasValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &ScheduleGeneratorHandler{service: &scheduleGeneratorMock{}}
	req, _ := http.NewRequest(http.MethodPost, "/schedules/generator", bytes.NewReader([]byte(`{"termId":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.GenerateAlias(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
