package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusops/timetable-engine/internal/domain"
)

func slot(day domain.Day, hour int) domain.TimeSlot {
	return domain.TimeSlot{Day: day, StartHour: hour}
}

func TestCheckRoomBooking_RejectsDoubleBooking(t *testing.T) {
	hall, err := domain.NewHall("H1", 50, domain.BaseTimeSlots())
	require.NoError(t, err)

	blockA := domain.Block{ID: "L_A", StaffID: "S1", RequiredRoomType: domain.RoomTypeHall, StudentCount: 10, TotalGroups: 2}
	blockB := domain.Block{ID: "L_B", StaffID: "S2", RequiredRoomType: domain.RoomTypeHall, StudentCount: 10, TotalGroups: 2}

	cm := NewConstraintManager([]domain.Block{blockA, blockB})
	assignments := map[string]domain.Assignment{
		"L_A": {BlockID: "L_A", RoomID: "H1", Slot: slot(domain.Sunday, 9)},
	}

	ok, reason := cm.CheckAll(blockB, hall, slot(domain.Sunday, 9), assignments)
	require.False(t, ok)
	require.Contains(t, reason, "already booked")
}

func TestCheckStaffBooking_RejectsDoubleBooking(t *testing.T) {
	hall1, _ := domain.NewHall("H1", 50, domain.BaseTimeSlots())
	hall2, _ := domain.NewHall("H2", 50, domain.BaseTimeSlots())

	blockA := domain.Block{ID: "L_A", StaffID: "SAME", RequiredRoomType: domain.RoomTypeHall, StudentCount: 10, TotalGroups: 2}
	blockB := domain.Block{ID: "L_B", StaffID: "SAME", RequiredRoomType: domain.RoomTypeHall, StudentCount: 10, TotalGroups: 2}

	cm := NewConstraintManager([]domain.Block{blockA, blockB})
	assignments := map[string]domain.Assignment{
		"L_A": {BlockID: "L_A", RoomID: "H1", Slot: slot(domain.Sunday, 9)},
	}

	ok, _ := cm.CheckAll(blockB, hall2, slot(domain.Sunday, 9), assignments)
	require.False(t, ok)
}

func TestCheckRoomAvailability_RejectsOutsideWindow(t *testing.T) {
	hall, _ := domain.NewHall("H1", 50, []domain.TimeSlot{slot(domain.Sunday, 9)})
	block := domain.Block{ID: "L_A", StaffID: "S1", RequiredRoomType: domain.RoomTypeHall, StudentCount: 10, TotalGroups: 1}

	cm := NewConstraintManager([]domain.Block{block})
	ok, reason := cm.CheckAll(block, hall, slot(domain.Sunday, 11), map[string]domain.Assignment{})
	require.False(t, ok)
	require.Contains(t, reason, "not available")
}

func TestCheckSingleGroupConflict_BlocksParallelSession(t *testing.T) {
	hall1, _ := domain.NewHall("H1", 50, domain.BaseTimeSlots())
	hall2, _ := domain.NewHall("H2", 50, domain.BaseTimeSlots())

	singleGroupBlock := domain.Block{ID: "L_A", StudyPlanID: "SP1", CourseCode: "CS101", StaffID: "S1", RequiredRoomType: domain.RoomTypeHall, StudentCount: 10, TotalGroups: 1}
	otherBlock := domain.Block{ID: "P_B", StudyPlanID: "SP1", CourseCode: "CS102", StaffID: "S2", RequiredRoomType: domain.RoomTypeHall, StudentCount: 10, TotalGroups: 3}

	cm := NewConstraintManager([]domain.Block{singleGroupBlock, otherBlock})
	assignments := map[string]domain.Assignment{
		"L_A": {BlockID: "L_A", RoomID: "H1", Slot: slot(domain.Sunday, 9)},
	}

	ok, reason := cm.CheckAll(otherBlock, hall2, slot(domain.Sunday, 9), assignments)
	require.False(t, ok)
	require.Contains(t, reason, "single-group")
}

func TestCheckLabRequirements(t *testing.T) {
	lab, _ := domain.NewLab("LB1", 30, domain.BaseTimeSlots(), false)
	hall, _ := domain.NewHall("H1", 30, domain.BaseTimeSlots())

	block := domain.Block{ID: "P_A", RequiredRoomType: domain.RoomTypeLab, StaffID: "S1", StudentCount: 20, TotalGroups: 1}
	cm := NewConstraintManager([]domain.Block{block})

	ok, _ := cm.CheckAll(block, hall, slot(domain.Sunday, 9), map[string]domain.Assignment{})
	require.False(t, ok, "lab-required block must not be placed in a hall")

	ok, reason := cm.CheckAll(block, lab, slot(domain.Sunday, 9), map[string]domain.Assignment{})
	require.False(t, ok, "lab not flagged for non-specialist courses and no preferred rooms set")
	require.Contains(t, reason, "non-specialist")

	block.PreferredRooms = []string{"LB1"}
	cm = NewConstraintManager([]domain.Block{block})
	ok, _ = cm.CheckAll(block, lab, slot(domain.Sunday, 9), map[string]domain.Assignment{})
	require.True(t, ok, "preferred lab should be accepted even when not usable for non-specialist courses")
}

func TestEvaluateRoomCapacity_Buckets(t *testing.T) {
	hall, _ := domain.NewHall("H1", 100, domain.BaseTimeSlots())
	cm := NewConstraintManager(nil)

	cases := []struct {
		students int
		want     float64
	}{
		{20, 0.3},  // 0.2 utilisation
		{40, 0.7},  // 0.4 utilisation
		{70, 1.0},  // 0.7 utilisation
		{95, 0.7},  // 0.95 utilisation
		{150, 0.0}, // over capacity
	}
	for _, c := range cases {
		block := domain.Block{StudentCount: c.students}
		require.Equal(t, c.want, evaluateRoomCapacity(block, hall, domain.TimeSlot{}, cm.state))
	}
}

func TestCanSwapTimes_UsesEmptyAssignmentMap(t *testing.T) {
	hall, _ := domain.NewHall("H1", 50, domain.BaseTimeSlots())
	blockA := domain.Block{ID: "L_A", RequiredRoomType: domain.RoomTypeHall, StaffID: "S1", StudentCount: 10, TotalGroups: 1}
	blockB := domain.Block{ID: "L_B", RequiredRoomType: domain.RoomTypeHall, StaffID: "S2", StudentCount: 10, TotalGroups: 1}
	cm := NewConstraintManager([]domain.Block{blockA, blockB})

	ok := canSwapTimes(cm, blockA, blockB, hall, hall, slot(domain.Sunday, 9), slot(domain.Sunday, 11))
	require.True(t, ok)
}
