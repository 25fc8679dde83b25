package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusops/timetable-engine/internal/domain"
	"github.com/campusops/timetable-engine/internal/dto"
	"github.com/campusops/timetable-engine/internal/models"
	"github.com/campusops/timetable-engine/internal/scheduler"
	appErrors "github.com/campusops/timetable-engine/pkg/errors"
	"github.com/campusops/timetable-engine/pkg/export"
	"github.com/campusops/timetable-engine/pkg/storage"
)

// ExportFormat selects the rendering an Export call produces.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type semesterScheduleRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.SemesterSchedule) error
	ListByTermClass(ctx context.Context, termID, classID string) ([]models.SemesterSchedule, error)
	FindByID(ctx context.Context, id string) (*models.SemesterSchedule, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SemesterScheduleStatus, meta types.JSONText) error
}

type semesterScheduleSlotRepository interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.SemesterScheduleSlot) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.SemesterScheduleSlot, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// engineRunner is the subset of *scheduler.Engine the service depends on,
// so tests can substitute a stub instead of building a real room pool.
type engineRunner interface {
	Schedule(ctx context.Context, plans []domain.StudyPlan) (domain.SchedulingAttempt, error)
}

// ScheduleGeneratorService builds timetable proposals by driving the
// constraint-based scheduling engine and persists accepted runs.
type ScheduleGeneratorService struct {
	semesters semesterScheduleRepository
	slots     semesterScheduleSlotRepository
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
	store     *proposalStore
	engineCfg scheduler.Config
	newEngine func(rooms []domain.Room, cfg scheduler.Config) engineRunner
	files     *storage.LocalStorage
	signer    *storage.SignedURLSigner
}

// ScheduleGeneratorConfig governs generator behaviour.
type ScheduleGeneratorConfig struct {
	ProposalTTL time.Duration
	Engine      scheduler.Config
	// Cache, when set, backs the pending-proposal store with Redis so a
	// proposal generated on one API replica can be saved from another.
	// A nil Cache keeps proposals in process memory only.
	Cache *redis.Client
	// Metrics, when set and Engine.Metrics is unset, is used to observe
	// every Schedule run. Pass a SchedulerRecorder sharing the process's
	// Prometheus registry so scheduler metrics surface on /metrics.
	Metrics scheduler.Recorder
	// ExportsDir, when set, enables ExportLink: exported files are
	// written under this directory and served back through a signed,
	// expiring download token instead of raw bytes.
	ExportsDir            string
	ExportSignedURLSecret string
	ExportSignedURLTTL    time.Duration
}

// NewScheduleGeneratorService wires scheduler dependencies.
func NewScheduleGeneratorService(
	semesters semesterScheduleRepository,
	slots semesterScheduleSlotRepository,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleGeneratorConfig,
) *ScheduleGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	cfg.Engine.Logger = logger
	if cfg.Engine.Metrics == nil && cfg.Metrics != nil {
		cfg.Engine.Metrics = cfg.Metrics
	}

	var files *storage.LocalStorage
	var signer *storage.SignedURLSigner
	if cfg.ExportsDir != "" {
		var err error
		files, err = storage.NewLocalStorage(cfg.ExportsDir)
		if err != nil {
			logger.Sugar().Warnw("export download links disabled", "error", err)
			files = nil
		} else {
			signer = storage.NewSignedURLSigner(cfg.ExportSignedURLSecret, cfg.ExportSignedURLTTL)
		}
	}

	return &ScheduleGeneratorService{
		semesters: semesters,
		slots:     slots,
		tx:        tx,
		validator: validate,
		logger:    logger,
		store:     newProposalStore(cfg.ProposalTTL, cfg.Cache),
		engineCfg: cfg.Engine,
		newEngine: func(rooms []domain.Room, ecfg scheduler.Config) engineRunner {
			return scheduler.NewEngine(rooms, ecfg)
		},
		files:  files,
		signer: signer,
	}
}

// Generate decodes the entity universe and demand for one run, drives the
// constraint and scheduling engine, and caches the resulting proposal for
// a subsequent Save.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}

	rooms, err := convertRooms(req.Rooms)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room inventory")
	}
	roster, err := convertStaff(req.Staff)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff roster")
	}
	plans, err := convertStudyPlans(req.StudyPlans, roster)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid study plans")
	}

	inputReport := scheduler.ValidateInput(plans)
	if inputReport.HasErrors() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "study plans failed validation: "+firstError(inputReport))
	}

	blocks := scheduler.BuildBlocks(plans)

	cfg := s.engineCfg
	if req.MaxAttempts > 0 {
		cfg.MaxAttempts = req.MaxAttempts
	}
	if req.MaxLocalSearchIterations > 0 {
		cfg.MaxLocalSearchIterations = req.MaxLocalSearchIterations
	}
	if req.Concurrency > 0 {
		cfg.Concurrency = req.Concurrency
	}

	engine := s.newEngine(rooms, cfg)
	attempt, err := engine.Schedule(ctx, plans)
	if err != nil {
		if errors.Is(err, scheduler.ErrNoValidSchedule) {
			return nil, appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, "could not find a valid schedule")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "scheduling engine failed")
	}

	roomsByID := make(map[string]domain.Room, len(rooms))
	for _, r := range rooms {
		roomsByID[r.ID()] = r
	}
	scheduleReport := scheduler.ValidateSchedule(attempt, blocks, roomsByID)

	proposal := scheduleProposal{
		ProposalID:  uuid.NewString(),
		TermID:      req.TermID,
		ClassID:     req.ClassID,
		Score:       attempt.Score,
		Coverage:    coverage(attempt, blocks),
		Attempt:     attempt,
		Blocks:      blocks,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)

	resp := &dto.GenerateScheduleResponse{
		ProposalID:  proposal.ProposalID,
		Score:       attempt.Score,
		Coverage:    proposal.Coverage,
		Assignments: renderAssignments(attempt, blocks),
		Unassigned:  append([]string(nil), attempt.Unassigned...),
		Diagnostics: renderDiagnostics(scheduleReport),
	}
	return resp, nil
}

// Save persists a cached proposal as a versioned semester schedule.
func (s *ScheduleGeneratorService) Save(ctx context.Context, req dto.SaveScheduleRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save schedule payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if s.tx == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metaPayload := map[string]any{
		"score":      proposal.Score,
		"coverage":   proposal.Coverage,
		"generated":  proposal.RequestedAt,
		"algorithm":  "multi_restart_greedy_v1",
		"unassigned": proposal.Attempt.Unassigned,
	}
	metaBytes, marshalErr := json.Marshal(metaPayload)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode schedule metadata")
		return "", err
	}

	record := &models.SemesterSchedule{
		TermID:  proposal.TermID,
		ClassID: proposal.ClassID,
		Status:  models.SemesterScheduleStatusDraft,
		Meta:    types.JSONText(metaBytes),
	}

	if err = s.semesters.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester schedule")
		return "", err
	}

	blocksByID := make(map[string]domain.Block, len(proposal.Blocks))
	for _, b := range proposal.Blocks {
		blocksByID[b.ID] = b
	}
	slotModels := make([]models.SemesterScheduleSlot, 0, len(proposal.Attempt.Assignments))
	for blockID, a := range proposal.Attempt.Assignments {
		block := blocksByID[blockID]
		slotModels = append(slotModels, models.SemesterScheduleSlot{
			SemesterScheduleID: record.ID,
			BlockID:            blockID,
			DayOfWeek:          int(a.Slot.Day),
			TimeSlot:           a.Slot.StartHour,
			CourseCode:         block.CourseCode,
			StaffID:            block.StaffID,
			RoomID:             a.RoomID,
		})
	}

	if err = s.slots.UpsertBatch(ctx, tx, slotModels); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist semester schedule slots")
		return "", err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transaction")
		return "", err
	}

	s.store.Delete(req.ProposalID)
	return record.ID, nil
}

// List returns semester schedules for a class-term tuple.
func (s *ScheduleGeneratorService) List(ctx context.Context, query dto.SemesterScheduleQuery) ([]models.SemesterSchedule, error) {
	if query.TermID == "" || query.ClassID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId and classId are required")
	}
	list, err := s.semesters.ListByTermClass(ctx, query.TermID, query.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semester schedules")
	}
	return list, nil
}

// GetSlots returns slot detail for a stored schedule.
func (s *ScheduleGeneratorService) GetSlots(ctx context.Context, scheduleID string) ([]models.SemesterScheduleSlot, error) {
	if scheduleID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule id is required")
	}
	if _, err := s.semesters.FindByID(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester schedule")
	}
	slots, err := s.slots.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semester schedule slots")
	}
	return slots, nil
}

// Export renders a stored schedule's slots as CSV or PDF for download.
func (s *ScheduleGeneratorService) Export(ctx context.Context, scheduleID string, format ExportFormat) ([]byte, string, error) {
	slots, err := s.GetSlots(ctx, scheduleID)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"day", "start_hour", "course_code", "staff_id", "room_id"},
		Rows:    make([]map[string]string, 0, len(slots)),
	}
	for _, slot := range slots {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"day":         domain.Day(slot.DayOfWeek).String(),
			"start_hour":  strconv.Itoa(slot.TimeSlot),
			"course_code": slot.CourseCode,
			"staff_id":    slot.StaffID,
			"room_id":     slot.RoomID,
		})
	}

	switch format {
	case ExportFormatCSV:
		body, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return body, "text/csv", nil
	case ExportFormatPDF:
		body, err := export.NewPDFExporter().Render(dataset, "semester schedule")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return body, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// ExportLink renders a stored schedule the same way Export does, persists
// it to disk and returns a signed, time-limited download token in place of
// the raw bytes.
func (s *ScheduleGeneratorService) ExportLink(ctx context.Context, scheduleID string, format ExportFormat) (string, time.Time, error) {
	if s.files == nil || s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "export download links are not configured")
	}

	body, contentType, err := s.Export(ctx, scheduleID, format)
	if err != nil {
		return "", time.Time{}, err
	}

	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	relPath := scheduleID + "-" + uuid.NewString() + "." + ext
	if _, err := s.files.Save(relPath, body); err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist export")
	}

	token, expiresAt, err := s.signer.Generate(scheduleID, relPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return token, expiresAt, nil
}

// ResolveDownload validates a download token minted by ExportLink and
// returns the file's bytes and content type.
func (s *ScheduleGeneratorService) ResolveDownload(token string) ([]byte, string, error) {
	if s.files == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrInternal, "export download links are not configured")
	}

	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid or expired download token")
	}

	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	defer file.Close() //nolint:errcheck

	body, err := io.ReadAll(file)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file")
	}

	contentType := "text/csv"
	if strings.HasSuffix(relPath, ".pdf") {
		contentType = "application/pdf"
	}
	return body, contentType, nil
}

// Delete removes a draft schedule version.
func (s *ScheduleGeneratorService) Delete(ctx context.Context, scheduleID string) error {
	record, err := s.semesters.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "semester schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester schedule")
	}
	if record.Status != models.SemesterScheduleStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft schedules can be deleted")
	}
	if err := s.semesters.Delete(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "semester schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete semester schedule")
	}
	return nil
}

// --- Proposal cache ---

type scheduleProposal struct {
	ProposalID  string
	TermID      string
	ClassID     string
	Score       float64
	Coverage    float64
	Attempt     domain.SchedulingAttempt
	Blocks      []domain.Block
	RequestedAt time.Time
}

// proposalStore caches generated proposals between Generate and Save. It
// always keeps a local copy; when a Redis client is configured it also
// writes through to Redis with the same TTL so a proposal generated on
// one API replica can still be saved from another.
type proposalStore struct {
	ttl   time.Duration
	cache *redis.Client
	mu    sync.RWMutex
	items map[string]scheduleProposal
}

func newProposalStore(ttl time.Duration, cache *redis.Client) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		cache: cache,
		items: make(map[string]scheduleProposal),
	}
}

func proposalCacheKey(id string) string {
	return "timetable:proposal:" + id
}

func (s *proposalStore) Save(proposal scheduleProposal) {
	s.mu.Lock()
	s.items[proposal.ProposalID] = proposal
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(proposal)
	if err != nil {
		return
	}
	s.cache.Set(context.Background(), proposalCacheKey(proposal.ProposalID), payload, s.ttl)
}

func (s *proposalStore) Get(id string) (scheduleProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if ok {
		if time.Since(proposal.RequestedAt) > s.ttl {
			s.Delete(id)
			return scheduleProposal{}, false
		}
		return proposal, true
	}

	if s.cache == nil {
		return scheduleProposal{}, false
	}
	raw, err := s.cache.Get(context.Background(), proposalCacheKey(id)).Bytes()
	if err != nil {
		return scheduleProposal{}, false
	}
	var cached scheduleProposal
	if err := json.Unmarshal(raw, &cached); err != nil {
		return scheduleProposal{}, false
	}
	s.mu.Lock()
	s.items[id] = cached
	s.mu.Unlock()
	return cached, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Del(context.Background(), proposalCacheKey(id))
	}
}

// --- Response rendering ---

func coverage(attempt domain.SchedulingAttempt, blocks []domain.Block) float64 {
	if len(blocks) == 0 {
		return 0
	}
	return float64(len(attempt.Assignments)) / float64(len(blocks))
}

func renderAssignments(attempt domain.SchedulingAttempt, blocks []domain.Block) []dto.AssignmentResponse {
	blocksByID := make(map[string]domain.Block, len(blocks))
	for _, b := range blocks {
		blocksByID[b.ID] = b
	}
	ids := make([]string, 0, len(attempt.Assignments))
	for id := range attempt.Assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]dto.AssignmentResponse, 0, len(ids))
	for _, id := range ids {
		a := attempt.Assignments[id]
		block := blocksByID[id]
		out = append(out, dto.AssignmentResponse{
			BlockID:      id,
			CourseCode:   block.CourseCode,
			BlockType:    string(block.Type),
			StaffID:      block.StaffID,
			Day:          a.Slot.Day.String(),
			StartHour:    a.Slot.StartHour,
			EndHour:      a.Slot.EndHour(),
			RoomID:       a.RoomID,
			StudentCount: block.StudentCount,
		})
	}
	return out
}

func renderDiagnostics(report scheduler.ValidationReport) []dto.DiagnosticMessage {
	out := make([]dto.DiagnosticMessage, 0, len(report.Messages))
	for _, m := range report.Messages {
		out = append(out, dto.DiagnosticMessage{Severity: string(m.Severity), Message: m.Message})
	}
	return out
}

func firstError(report scheduler.ValidationReport) string {
	for _, m := range report.Messages {
		if m.Severity == scheduler.SeverityError {
			return m.Message
		}
	}
	return "unknown validation error"
}
