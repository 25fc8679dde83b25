package scheduler

import (
	"fmt"

	"github.com/campusops/timetable-engine/internal/domain"
)

// BuildBlocks explodes every study plan's course assignments into
// atomic, schedulable blocks: one per lecture group, one per lab group.
// Student counts are split evenly across groups using integer division,
// matching how the source engine under-counts the remainder rather than
// rounding up. Block ids are assigned from a single counter shared across
// every study plan so ids stay unique and stable for a given input order.
func BuildBlocks(plans []domain.StudyPlan) []domain.Block {
	var blocks []domain.Block
	counter := 0

	for _, plan := range plans {
		for _, ca := range plan.CourseAssignments {
			studentsPerLectureGroup := plan.ExpectedStudents / ca.LectureGroups
			for _, lg := range ca.Lecturers {
				for i := 0; i < lg.NumGroups; i++ {
					counter++
					blocks = append(blocks, domain.Block{
						ID:               fmt.Sprintf("L_%s_%s_%d", ca.Course.Code, lg.Lecturer.ID(), counter),
						Type:             domain.BlockTypeLecture,
						CourseCode:       ca.Course.Code,
						StudyPlanID:      plan.ID,
						AcademicListID:   plan.AcademicList.ID,
						AcademicLevel:    plan.AcademicLevel,
						StaffID:          lg.Lecturer.ID(),
						StaffName:        lg.Lecturer.Name(),
						StaffPreferences: lg.Lecturer.Preferences(),
						StudentCount:     studentsPerLectureGroup,
						RequiredRoomType: domain.RoomTypeHall,
						TotalGroups:      ca.LectureGroups,
					})
				}
			}

			if ca.LabGroups <= 0 {
				continue
			}
			studentsPerLabGroup := plan.ExpectedStudents / ca.LabGroups
			roomType := domain.RoomTypeHall
			if ca.PracticalInLab {
				roomType = domain.RoomTypeLab
			}
			for _, tg := range ca.TeachingAssistants {
				for i := 0; i < tg.NumGroups; i++ {
					counter++
					blocks = append(blocks, domain.Block{
						ID:               fmt.Sprintf("P_%s_%s_%d", ca.Course.Code, tg.Assistant.ID(), counter),
						Type:             domain.BlockTypePractical,
						CourseCode:       ca.Course.Code,
						StudyPlanID:      plan.ID,
						AcademicListID:   plan.AcademicList.ID,
						AcademicLevel:    plan.AcademicLevel,
						StaffID:          tg.Assistant.ID(),
						StaffName:        tg.Assistant.Name(),
						StaffPreferences: tg.Assistant.Preferences(),
						StudentCount:     studentsPerLabGroup,
						RequiredRoomType: roomType,
						PreferredRooms:   append([]string(nil), ca.PreferredRooms...),
						TotalGroups:      ca.LabGroups,
					})
				}
			}
		}
	}

	return blocks
}
