package service

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/timetable-engine/internal/dto"
	"github.com/campusops/timetable-engine/internal/models"
	"github.com/campusops/timetable-engine/internal/scheduler"
	appErrors "github.com/campusops/timetable-engine/pkg/errors"
)

func sampleGenerateRequest() dto.GenerateScheduleRequest {
	return dto.GenerateScheduleRequest{
		TermID:  "term-1",
		ClassID: "class-1",
		Rooms: []dto.RoomRequest{
			{
				ID:       "H1",
				Type:     "hall",
				Capacity: 120,
				Availability: []dto.TimeWindowRequest{
					{Day: "SUNDAY", StartHour: 9, EndHour: 19},
					{Day: "MONDAY", StartHour: 9, EndHour: 19},
				},
			},
			{
				ID:       "L1",
				Type:     "lab",
				Capacity: 60,
				Availability: []dto.TimeWindowRequest{
					{Day: "SUNDAY", StartHour: 9, EndHour: 19},
					{Day: "MONDAY", StartHour: 9, EndHour: 19},
				},
				UsedInNonSpecialistCourses: true,
			},
		},
		Staff: []dto.StaffRequest{
			{ID: "L-AMIN", Name: "Dr. Amin", Variant: "lecturer", Degree: "PROFESSOR", Preferences: []dto.TimeWindowRequest{
				{Day: "SUNDAY", StartHour: 9, EndHour: 19},
				{Day: "MONDAY", StartHour: 9, EndHour: 19},
			}},
			{ID: "TA-SARA", Name: "Sara", Variant: "teaching_assistant", Degree: "TEACHING_ASSISTANT", Preferences: []dto.TimeWindowRequest{
				{Day: "SUNDAY", StartHour: 9, EndHour: 19},
				{Day: "MONDAY", StartHour: 9, EndHour: 19},
			}},
		},
		StudyPlans: []dto.StudyPlanRequest{
			{
				ID:               "SP1",
				AcademicListID:   "CS2",
				AcademicListName: "CS Year 2",
				AcademicLevel:    2,
				ExpectedStudents: 60,
				CourseAssignments: []dto.CourseAssignmentRequest{
					{
						CourseCode:    "CS201",
						CourseName:    "Algorithms",
						LectureGroups: 1,
						LabGroups:     1,
						Lecturers:     []dto.StaffGroupRequest{{StaffID: "L-AMIN", NumGroups: 1}},
						TeachingAssistants: []dto.StaffGroupRequest{
							{StaffID: "TA-SARA", NumGroups: 1},
						},
						PracticalInLab: true,
					},
				},
			},
		},
		MaxAttempts:              3,
		MaxLocalSearchIterations: 5,
	}
}

func TestScheduleGeneratorServiceGenerateSuccess(t *testing.T) {
	svc := newSchedulerServiceFixture(t, nil)

	resp, err := svc.Generate(context.Background(), sampleGenerateRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ProposalID)
	assert.Len(t, resp.Assignments, 2)
	assert.Empty(t, resp.Unassigned)
	assert.Greater(t, resp.Coverage, 0.0)
}

func TestScheduleGeneratorServiceGenerateValidationError(t *testing.T) {
	svc := newSchedulerServiceFixture(t, nil)

	req := sampleGenerateRequest()
	req.Rooms = nil

	_, err := svc.Generate(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestScheduleGeneratorServiceGenerateNoValidSchedule(t *testing.T) {
	svc := newSchedulerServiceFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Generate(ctx, sampleGenerateRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestScheduleGeneratorServiceSaveRoundTrip(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	svc := newSchedulerServiceFixture(t, txProvider)

	resp, err := svc.Generate(context.Background(), sampleGenerateRequest())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	id, err := svc.Save(context.Background(), dto.SaveScheduleRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, ok := svc.store.Get(resp.ProposalID)
	assert.False(t, ok, "saved proposal should be evicted from the cache")
}

func TestScheduleGeneratorServiceSaveUnknownProposal(t *testing.T) {
	svc := newSchedulerServiceFixture(t, nil)

	_, err := svc.Save(context.Background(), dto.SaveScheduleRequest{ProposalID: "missing"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestScheduleGeneratorServiceDeleteRejectsPublished(t *testing.T) {
	semesters := &semesterScheduleRepoStub{items: []models.SemesterSchedule{
		{ID: "sched-1", Status: models.SemesterScheduleStatusPublished},
	}}
	svc := &ScheduleGeneratorService{
		semesters: semesters,
		slots:     &semesterScheduleSlotRepoStub{},
		validator: validator.New(),
		logger:    zap.NewNop(),
		store:     newProposalStore(time.Hour, nil),
	}

	err := svc.Delete(context.Background(), "sched-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestScheduleGeneratorServiceExportLinkRoundTrip(t *testing.T) {
	slots := &semesterScheduleSlotRepoStub{items: map[string][]models.SemesterScheduleSlot{
		"sched-1": {
			{SemesterScheduleID: "sched-1", DayOfWeek: 0, TimeSlot: 9, CourseCode: "CS201", StaffID: "L-AMIN", RoomID: "H1"},
		},
	}}
	svc := NewScheduleGeneratorService(
		&semesterScheduleRepoStub{items: []models.SemesterSchedule{
			{ID: "sched-1", Status: models.SemesterScheduleStatusDraft},
		}},
		slots,
		noopTxProvider{},
		validator.New(),
		zap.NewNop(),
		ScheduleGeneratorConfig{
			ProposalTTL:           time.Hour,
			Engine:                scheduler.Config{MaxAttempts: 3, MaxLocalSearchIterations: 5},
			ExportsDir:            t.TempDir(),
			ExportSignedURLSecret: "test-secret",
			ExportSignedURLTTL:    time.Hour,
		},
	)

	token, expiresAt, err := svc.ExportLink(context.Background(), "sched-1", ExportFormatCSV)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	body, contentType, err := svc.ResolveDownload(token)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(body), "CS201")
}

func TestScheduleGeneratorServiceExportLinkRejectsBadToken(t *testing.T) {
	svc := NewScheduleGeneratorService(
		&semesterScheduleRepoStub{},
		&semesterScheduleSlotRepoStub{},
		noopTxProvider{},
		validator.New(),
		zap.NewNop(),
		ScheduleGeneratorConfig{
			ProposalTTL:           time.Hour,
			Engine:                scheduler.Config{MaxAttempts: 3, MaxLocalSearchIterations: 5},
			ExportsDir:            t.TempDir(),
			ExportSignedURLSecret: "test-secret",
			ExportSignedURLTTL:    time.Hour,
		},
	)

	_, _, err := svc.ResolveDownload("not-a-real-token")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestScheduleGeneratorServiceExportLinkUnconfigured(t *testing.T) {
	svc := newSchedulerServiceFixture(t, nil)

	_, _, err := svc.ExportLink(context.Background(), "sched-1", ExportFormatCSV)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

// --- Fixtures ---

func newSchedulerServiceFixture(t *testing.T, tx txProvider) *ScheduleGeneratorService {
	if tx == nil {
		tx = noopTxProvider{}
	}
	return NewScheduleGeneratorService(
		&semesterScheduleRepoStub{},
		&semesterScheduleSlotRepoStub{},
		tx,
		validator.New(),
		zap.NewNop(),
		ScheduleGeneratorConfig{
			ProposalTTL: time.Hour,
			Engine:      scheduler.Config{MaxAttempts: 3, MaxLocalSearchIterations: 5},
		},
	)
}

type semesterScheduleRepoStub struct {
	items []models.SemesterSchedule
}

func (s *semesterScheduleRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.SemesterSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuidString(len(s.items) + 1)
	}
	schedule.Version = len(s.items) + 1
	s.items = append(s.items, *schedule)
	return nil
}

func (s *semesterScheduleRepoStub) ListByTermClass(ctx context.Context, termID, classID string) ([]models.SemesterSchedule, error) {
	return s.items, nil
}

func (s *semesterScheduleRepoStub) FindByID(ctx context.Context, id string) (*models.SemesterSchedule, error) {
	for _, item := range s.items {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *semesterScheduleRepoStub) Delete(ctx context.Context, id string) error {
	for idx, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *semesterScheduleRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SemesterScheduleStatus, meta types.JSONText) error {
	for idx := range s.items {
		if s.items[idx].ID == id {
			s.items[idx].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

type semesterScheduleSlotRepoStub struct {
	items map[string][]models.SemesterScheduleSlot
}

func (s *semesterScheduleSlotRepoStub) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.SemesterScheduleSlot) error {
	if s.items == nil {
		s.items = make(map[string][]models.SemesterScheduleSlot)
	}
	for _, slot := range slots {
		s.items[slot.SemesterScheduleID] = append(s.items[slot.SemesterScheduleID], slot)
	}
	return nil
}

func (s *semesterScheduleSlotRepoStub) ListBySchedule(ctx context.Context, scheduleID string) ([]models.SemesterScheduleSlot, error) {
	return s.items[scheduleID], nil
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func uuidString(v int) string {
	return "sched-" + strconv.Itoa(v)
}
