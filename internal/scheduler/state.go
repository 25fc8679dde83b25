package scheduler

import "github.com/campusops/timetable-engine/internal/domain"

// courseSlotKey scopes the "same course, same study plan" index to one
// study plan, since two different cohorts sharing a course code is not a
// scheduling conflict.
type courseSlotKey struct {
	studyPlanID string
	courseCode  string
}

// levelKey scopes gap bookkeeping to one academic list at one academic
// level, since the same academic list can be offered to more than one
// level and their days must not be merged.
type levelKey struct {
	academicListID string
	academicLevel  int
}

// State is the incremental index the Constraint Manager consults. It is
// rebuilt from scratch on every CheckAll call from whatever assignments
// map is passed in — there is no persistent mutation between calls, and
// the block currently under consideration is never pre-inserted before
// the hard constraints run against it.
type State struct {
	blocksByID map[string]domain.Block

	// roomBookings maps a room to every slot it holds a session in.
	roomBookings map[string]map[domain.TimeSlot]string
	// staffBookings maps a staff member to every slot they are teaching.
	staffBookings map[string]map[domain.TimeSlot]string
	// courseSlots maps (study plan, course) to the slots it occupies.
	// It is filled on every Rebuild; no constraint reads it (the
	// single-group check reads studyPlanSlots).
	courseSlots map[courseSlotKey]map[domain.TimeSlot][]string
	// levelSlots maps an (academic list, academic level) pair to the
	// start hours it is booked on a given day, for gap-minimisation
	// scoring.
	levelSlots map[levelKey]map[domain.Day][]int
	// studyPlanSlots maps a study plan to every block occupying a given
	// slot, for single-group/parallelism conflicts.
	studyPlanSlots map[string]map[domain.TimeSlot][]string
}

// NewState builds an empty index over the full block catalogue. Blocks
// are looked up by id as constraints run; the booking maps are rebuilt
// per call via Rebuild.
func NewState(blocks []domain.Block) *State {
	byID := make(map[string]domain.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	s := &State{blocksByID: byID}
	s.Rebuild(nil)
	return s
}

// Rebuild repopulates the five index maps from the given assignments in
// a single pass. It must be called before any hard constraint check.
func (s *State) Rebuild(assignments map[string]domain.Assignment) {
	s.roomBookings = make(map[string]map[domain.TimeSlot]string)
	s.staffBookings = make(map[string]map[domain.TimeSlot]string)
	s.courseSlots = make(map[courseSlotKey]map[domain.TimeSlot][]string)
	s.levelSlots = make(map[levelKey]map[domain.Day][]int)
	s.studyPlanSlots = make(map[string]map[domain.TimeSlot][]string)

	for blockID, a := range assignments {
		block, ok := s.blocksByID[blockID]
		if !ok {
			continue
		}

		if s.roomBookings[a.RoomID] == nil {
			s.roomBookings[a.RoomID] = make(map[domain.TimeSlot]string)
		}
		s.roomBookings[a.RoomID][a.Slot] = blockID

		if s.staffBookings[block.StaffID] == nil {
			s.staffBookings[block.StaffID] = make(map[domain.TimeSlot]string)
		}
		s.staffBookings[block.StaffID][a.Slot] = blockID

		csk := courseSlotKey{studyPlanID: block.StudyPlanID, courseCode: block.CourseCode}
		if s.courseSlots[csk] == nil {
			s.courseSlots[csk] = make(map[domain.TimeSlot][]string)
		}
		s.courseSlots[csk][a.Slot] = append(s.courseSlots[csk][a.Slot], blockID)

		lk := levelKey{academicListID: block.AcademicListID, academicLevel: block.AcademicLevel}
		if s.levelSlots[lk] == nil {
			s.levelSlots[lk] = make(map[domain.Day][]int)
		}
		s.levelSlots[lk][a.Slot.Day] = append(s.levelSlots[lk][a.Slot.Day], a.Slot.StartHour)

		if s.studyPlanSlots[block.StudyPlanID] == nil {
			s.studyPlanSlots[block.StudyPlanID] = make(map[domain.TimeSlot][]string)
		}
		s.studyPlanSlots[block.StudyPlanID][a.Slot] = append(s.studyPlanSlots[block.StudyPlanID][a.Slot], blockID)
	}
}

// Block looks up a block by id. Every constraint that needs a peer
// block's details (for example to compare course codes) goes through
// this rather than the assignments map, since the map only carries room
// and slot.
func (s *State) Block(id string) (domain.Block, bool) {
	b, ok := s.blocksByID[id]
	return b, ok
}
