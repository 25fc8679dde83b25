package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/timetable-engine/internal/models"
)

func newSemesterScheduleSlotRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSemesterScheduleSlotRepositoryUpsertBatch(t *testing.T) {
	db, mock, cleanup := newSemesterScheduleSlotRepoMock(t)
	defer cleanup()
	repo := NewSemesterScheduleSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO semester_schedule_slots")).
		WithArgs(sqlmock.AnyArg(), "sched-1", "L_CS201_L-AMIN_1", 0, 9, "CS201", "L-AMIN", "H1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO semester_schedule_slots")).
		WithArgs(sqlmock.AnyArg(), "sched-1", "P_CS201_TA-SARA_2", 0, 11, "CS201", "TA-SARA", "L1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slots := []models.SemesterScheduleSlot{
		{
			SemesterScheduleID: "sched-1",
			BlockID:            "L_CS201_L-AMIN_1",
			DayOfWeek:          0,
			TimeSlot:           9,
			CourseCode:         "CS201",
			StaffID:            "L-AMIN",
			RoomID:             "H1",
		},
		{
			SemesterScheduleID: "sched-1",
			BlockID:            "P_CS201_TA-SARA_2",
			DayOfWeek:          0,
			TimeSlot:           11,
			CourseCode:         "CS201",
			StaffID:            "TA-SARA",
			RoomID:             "L1",
		},
	}

	require.NoError(t, repo.UpsertBatch(context.Background(), nil, slots))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterScheduleSlotRepositoryListBySchedule(t *testing.T) {
	db, mock, cleanup := newSemesterScheduleSlotRepoMock(t)
	defer cleanup()
	repo := NewSemesterScheduleSlotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "semester_schedule_id", "block_id", "day_of_week", "time_slot", "subject_id", "teacher_id", "room", "created_at"}).
		AddRow("slot-1", "sched-1", "L_CS201_L-AMIN_1", 0, 9, "CS201", "L-AMIN", "H1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, semester_schedule_id, block_id, day_of_week, time_slot, subject_id, teacher_id, room, created_at FROM semester_schedule_slots WHERE semester_schedule_id = $1 ORDER BY day_of_week ASC, time_slot ASC")).
		WithArgs("sched-1").
		WillReturnRows(rows)

	slots, err := repo.ListBySchedule(context.Background(), "sched-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "CS201", slots[0].CourseCode)
	assert.Equal(t, "H1", slots[0].RoomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
