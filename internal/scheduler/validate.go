package scheduler

import (
	"fmt"
	"sort"

	"github.com/campusops/timetable-engine/internal/domain"
)

// Severity classifies a validation message the same way the source
// engine's validator did: an ERROR in the input report rejects the
// request, while ERRORs in a completed schedule's report are returned
// as diagnostics alongside the proposal; WARNING is informational but
// worth surfacing, INFO is advisory only.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// ValidationMessage is one finding from an input or schedule validation
// pass.
type ValidationMessage struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationReport collects messages from one validation pass.
type ValidationReport struct {
	Messages []ValidationMessage `json:"messages"`
}

func (r *ValidationReport) add(sev Severity, format string, args ...interface{}) {
	r.Messages = append(r.Messages, ValidationMessage{Severity: sev, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any message in the report is an ERROR.
func (r ValidationReport) HasErrors() bool {
	for _, m := range r.Messages {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Summary tallies messages by severity.
func (r ValidationReport) Summary() map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, m := range r.Messages {
		counts[m.Severity]++
	}
	return counts
}

// ValidateInput checks study plans and their course assignments ahead of
// scheduling, surfacing the same invariants the domain constructors
// enforce plus a few advisory checks that are not themselves fatal.
func ValidateInput(plans []domain.StudyPlan) ValidationReport {
	var report ValidationReport

	for _, plan := range plans {
		if plan.ExpectedStudents <= 0 {
			report.add(SeverityError, "study plan %s: expected_students must be positive", plan.ID)
		}
		if len(plan.CourseAssignments) == 0 {
			report.add(SeverityError, "study plan %s: has no course assignments", plan.ID)
			continue
		}
		for _, ca := range plan.CourseAssignments {
			lecturerTotal := 0
			for _, lg := range ca.Lecturers {
				lecturerTotal += lg.NumGroups
			}
			if lecturerTotal != ca.LectureGroups {
				report.add(SeverityError, "study plan %s course %s: lecturer groups sum to %d, want %d", plan.ID, ca.Course.Code, lecturerTotal, ca.LectureGroups)
			}
			if ca.LabGroups > 0 {
				taTotal := 0
				for _, tg := range ca.TeachingAssistants {
					taTotal += tg.NumGroups
				}
				if taTotal != ca.LabGroups {
					report.add(SeverityError, "study plan %s course %s: teaching assistant groups sum to %d, want %d", plan.ID, ca.Course.Code, taTotal, ca.LabGroups)
				}
			}
			if ca.LabRequired && ca.LabGroups == 0 {
				report.add(SeverityWarning, "study plan %s course %s: marked lab-required but has no lab groups", plan.ID, ca.Course.Code)
			}
		}
	}

	return report
}

// ValidateSchedule checks a completed scheduling attempt: unassigned
// blocks, room-type mismatches, capacity shortfalls, unavailable slots,
// and room/staff double-bookings.
func ValidateSchedule(attempt domain.SchedulingAttempt, blocks []domain.Block, roomsByID map[string]domain.Room) ValidationReport {
	var report ValidationReport

	blocksByID := make(map[string]domain.Block, len(blocks))
	for _, b := range blocks {
		blocksByID[b.ID] = b
	}

	for _, id := range attempt.Unassigned {
		report.add(SeverityError, "block %s: could not be assigned", id)
	}

	roomSlotOwner := make(map[string]map[domain.TimeSlot]string)
	staffSlotOwner := make(map[string]map[domain.TimeSlot]string)

	ids := make([]string, 0, len(attempt.Assignments))
	for id := range attempt.Assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := attempt.Assignments[id]
		block, ok := blocksByID[id]
		if !ok {
			report.add(SeverityError, "assignment %s: references unknown block", id)
			continue
		}
		room, ok := roomsByID[a.RoomID]
		if !ok {
			report.add(SeverityError, "block %s: assigned to unknown room %s", id, a.RoomID)
			continue
		}
		if room.Type() != block.RequiredRoomType {
			report.add(SeverityError, "block %s: requires %s, assigned to %s room %s", id, block.RequiredRoomType, room.Type(), room.ID())
		}
		if room.Capacity() < block.StudentCount {
			report.add(SeverityWarning, "block %s: room %s capacity %d is below student count %d", id, room.ID(), room.Capacity(), block.StudentCount)
		}
		if !room.IsAvailable(a.Slot) {
			report.add(SeverityError, "block %s: room %s is not available at %s %d:00", id, room.ID(), a.Slot.Day, a.Slot.StartHour)
		}

		if roomSlotOwner[a.RoomID] == nil {
			roomSlotOwner[a.RoomID] = map[domain.TimeSlot]string{}
		}
		if owner, exists := roomSlotOwner[a.RoomID][a.Slot]; exists {
			report.add(SeverityError, "room %s double-booked at %s %d:00 by %s and %s", a.RoomID, a.Slot.Day, a.Slot.StartHour, owner, id)
		} else {
			roomSlotOwner[a.RoomID][a.Slot] = id
		}

		if staffSlotOwner[block.StaffID] == nil {
			staffSlotOwner[block.StaffID] = map[domain.TimeSlot]string{}
		}
		if owner, exists := staffSlotOwner[block.StaffID][a.Slot]; exists {
			report.add(SeverityError, "staff %s double-booked at %s %d:00 by %s and %s", block.StaffID, a.Slot.Day, a.Slot.StartHour, owner, id)
		} else {
			staffSlotOwner[block.StaffID][a.Slot] = id
		}
	}

	return report
}
