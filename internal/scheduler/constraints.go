package scheduler

import (
	"fmt"
	"sort"

	"github.com/campusops/timetable-engine/internal/domain"
)

// hardConstraint gates a candidate placement outright. It returns a
// human-readable reason on rejection, never an error — a failed
// constraint is an ordinary outcome, not a fault.
type hardConstraint struct {
	name string
	fn   func(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) (bool, string)
}

// softConstraint contributes a weighted score towards how good an
// otherwise-valid placement is.
type softConstraint struct {
	name   string
	weight float64
	fn     func(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) float64
}

// ConstraintManager runs the hard/soft constraint pipeline against the
// state index. Hard constraints run in registration order and the
// manager short-circuits on the first rejection; soft constraints all
// run and their weighted scores are summed.
type ConstraintManager struct {
	state *State
	hard  []hardConstraint
	soft  []softConstraint
}

// NewConstraintManager builds a manager over the given block catalogue
// and registers every hard and soft constraint in the fixed order the
// source scheduling engine uses.
func NewConstraintManager(blocks []domain.Block) *ConstraintManager {
	cm := &ConstraintManager{state: NewState(blocks)}
	cm.hard = []hardConstraint{
		{"no_double_room_booking", checkRoomBooking},
		{"no_double_staff_booking", checkStaffBooking},
		{"room_availability_window", checkRoomAvailability},
		{"single_group_parallelism", checkSingleGroupConflict},
		{"lab_requirements", checkLabRequirements},
	}
	cm.soft = []softConstraint{
		{"lecturer_preference_match", 5.0, evaluateLecturerPreferences},
		{"ta_preference_match", 3.0, evaluateTAPreferences},
		{"gap_minimisation", 2.0, evaluateGaps},
		{"room_capacity_utilisation", 1.5, evaluateRoomCapacity},
	}
	return cm
}

// CheckAll rebuilds the state index from the given assignments (the
// block under test is never pre-inserted, per the source engine's
// update-then-check sequencing) and runs every hard constraint in order.
func (cm *ConstraintManager) CheckAll(block domain.Block, room domain.Room, slot domain.TimeSlot, assignments map[string]domain.Assignment) (bool, string) {
	cm.state.Rebuild(assignments)
	for _, c := range cm.hard {
		if ok, reason := c.fn(block, room, slot, cm.state); !ok {
			return false, reason
		}
	}
	return true, ""
}

// EvaluateSoft sums every soft constraint's weighted score against the
// state index as it stood after the most recent CheckAll rebuild — it
// does not rebuild the index itself.
func (cm *ConstraintManager) EvaluateSoft(block domain.Block, room domain.Room, slot domain.TimeSlot) float64 {
	total := 0.0
	for _, c := range cm.soft {
		total += c.fn(block, room, slot, cm.state) * c.weight
	}
	return total
}

func checkRoomBooking(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) (bool, string) {
	if booked, ok := state.roomBookings[room.ID()][slot]; ok {
		return false, fmt.Sprintf("room %s already booked by %s at %s %d:00", room.ID(), booked, slot.Day, slot.StartHour)
	}
	return true, ""
}

func checkStaffBooking(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) (bool, string) {
	if booked, ok := state.staffBookings[block.StaffID][slot]; ok {
		return false, fmt.Sprintf("staff %s already booked by %s at %s %d:00", block.StaffID, booked, slot.Day, slot.StartHour)
	}
	return true, ""
}

func checkRoomAvailability(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) (bool, string) {
	if !room.IsAvailable(slot) {
		return false, fmt.Sprintf("room %s is not available at %s %d:00", room.ID(), slot.Day, slot.StartHour)
	}
	return true, ""
}

// checkSingleGroupConflict rejects overlapping sessions within the same
// study plan whenever either session is the sole group for its course:
// a single-group session occupies the whole cohort, so nothing else for
// that study plan may run in parallel.
func checkSingleGroupConflict(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) (bool, string) {
	existing := state.studyPlanSlots[block.StudyPlanID][slot]
	if len(existing) == 0 {
		return true, ""
	}
	if block.SingleGroup() {
		return false, fmt.Sprintf("study plan %s already has a session at %s %d:00 and %s is single-group", block.StudyPlanID, slot.Day, slot.StartHour, block.ID)
	}
	for _, peerID := range existing {
		peer, ok := state.Block(peerID)
		if !ok {
			continue
		}
		if peer.SingleGroup() {
			return false, fmt.Sprintf("study plan %s has single-group session %s at %s %d:00", block.StudyPlanID, peer.ID, slot.Day, slot.StartHour)
		}
		if peer.CourseCode == block.CourseCode && (peer.TotalGroups == 1 || block.TotalGroups == 1) {
			return false, fmt.Sprintf("course %s already has a single-group session for study plan %s at %s %d:00", block.CourseCode, block.StudyPlanID, slot.Day, slot.StartHour)
		}
	}
	return true, ""
}

// checkLabRequirements enforces the room-type and specialist-lab rules:
// a block requiring a lab must land in a Lab, restricted to one of its
// named preferred rooms when it has any, and otherwise only a lab marked
// usable for non-specialist courses; a block requiring a hall must land
// in a Hall.
func checkLabRequirements(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) (bool, string) {
	switch block.RequiredRoomType {
	case domain.RoomTypeLab:
		lab, ok := room.(*domain.Lab)
		if !ok {
			return false, fmt.Sprintf("block %s requires a lab, got %s", block.ID, room.ID())
		}
		if len(block.PreferredRooms) > 0 {
			for _, preferred := range block.PreferredRooms {
				if preferred == lab.ID() {
					return true, ""
				}
			}
			return false, fmt.Sprintf("lab %s is not among block %s's preferred rooms", lab.ID(), block.ID)
		}
		if !lab.UsedInNonSpecialistCourses {
			return false, fmt.Sprintf("lab %s is not usable for non-specialist courses", lab.ID())
		}
		return true, ""
	case domain.RoomTypeHall:
		if _, ok := room.(*domain.Hall); !ok {
			return false, fmt.Sprintf("block %s requires a hall, got %s", block.ID, room.ID())
		}
		return true, ""
	default:
		return false, fmt.Sprintf("block %s has unknown required room type %q", block.ID, block.RequiredRoomType)
	}
}

func evaluateLecturerPreferences(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) float64 {
	if block.Type != domain.BlockTypeLecture {
		return 0.0
	}
	if len(block.StaffPreferences) == 0 {
		return 0.0
	}
	if block.PrefersSlot(slot) {
		return 1.0
	}
	return 0.0
}

func evaluateTAPreferences(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) float64 {
	if block.Type != domain.BlockTypePractical {
		return 0.0
	}
	if len(block.StaffPreferences) == 0 {
		return 0.0
	}
	if block.PrefersSlot(slot) {
		return 1.0
	}
	return 0.0
}

// evaluateGaps scores how much idle time a candidate placement would add
// to the academic list's day, in whole hours. It is neutral (1.0) the
// first time a list is scheduled on a given day, since there is nothing
// yet to create a gap against.
func evaluateGaps(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) float64 {
	existingHours := state.levelSlots[levelKey{academicListID: block.AcademicListID, academicLevel: block.AcademicLevel}][slot.Day]
	if len(existingHours) == 0 {
		return 1.0
	}

	hours := append([]int(nil), existingHours...)
	sort.Ints(hours)

	existingMaxGap := 0
	for i := 1; i < len(hours); i++ {
		if gap := hours[i] - hours[i-1]; gap > existingMaxGap {
			existingMaxGap = gap
		}
	}

	minHour, maxHour := hours[0], hours[len(hours)-1]
	distToMin := slot.StartHour - minHour
	if distToMin < 0 {
		distToMin = -distToMin
	}
	distToMax := slot.StartHour - maxHour
	if distToMax < 0 {
		distToMax = -distToMax
	}
	candidateDist := distToMin
	if distToMax > candidateDist {
		candidateDist = distToMax
	}

	maxGap := existingMaxGap
	if candidateDist > maxGap {
		maxGap = candidateDist
	}

	switch {
	case maxGap <= 2:
		return 1.0
	case maxGap <= 4:
		return 0.5
	default:
		return 0.0
	}
}

// evaluateRoomCapacity scores how well the room's capacity fits the
// block's student count, banding utilisation into five buckets. Over-
// capacity placements score zero; comfortably-filled rooms score best.
func evaluateRoomCapacity(block domain.Block, room domain.Room, slot domain.TimeSlot, state *State) float64 {
	utilisation := float64(block.StudentCount) / float64(room.Capacity())
	switch {
	case utilisation > 1.0:
		return 0.0
	case utilisation > 0.9:
		return 0.7
	case utilisation >= 0.5:
		return 1.0
	case utilisation >= 0.3:
		return 0.7
	default:
		return 0.3
	}
}
