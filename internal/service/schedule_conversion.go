package service

import (
	"fmt"

	"github.com/campusops/timetable-engine/internal/domain"
	"github.com/campusops/timetable-engine/internal/dto"
)

var dayByName = map[string]domain.Day{
	"SUNDAY":    domain.Sunday,
	"MONDAY":    domain.Monday,
	"TUESDAY":   domain.Tuesday,
	"WEDNESDAY": domain.Wednesday,
	"THURSDAY":  domain.Thursday,
	"FRIDAY":    domain.Friday,
	"SATURDAY":  domain.Saturday,
}

func convertDay(name string) (domain.Day, error) {
	day, ok := dayByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", name)
	}
	return day, nil
}

func convertWindows(windows []dto.TimeWindowRequest) ([]domain.TimePreference, error) {
	out := make([]domain.TimePreference, 0, len(windows))
	for _, w := range windows {
		day, err := convertDay(w.Day)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.TimePreference{Day: day, StartHour: w.StartHour, EndHour: w.EndHour})
	}
	return out, nil
}

// windowsAsSlots expands availability windows into the discrete two-hour
// base slots a Room stores, since domain.Room.Availability is a slot list
// rather than arbitrary windows.
func windowsAsSlots(windows []dto.TimeWindowRequest) ([]domain.TimeSlot, error) {
	var slots []domain.TimeSlot
	for _, w := range windows {
		day, err := convertDay(w.Day)
		if err != nil {
			return nil, err
		}
		for start := w.StartHour; start+2 <= w.EndHour; start += 2 {
			slots = append(slots, domain.TimeSlot{Day: day, StartHour: start})
		}
	}
	return slots, nil
}

func convertRooms(reqs []dto.RoomRequest) ([]domain.Room, error) {
	rooms := make([]domain.Room, 0, len(reqs))
	for _, r := range reqs {
		slots, err := windowsAsSlots(r.Availability)
		if err != nil {
			return nil, fmt.Errorf("room %s: %w", r.ID, err)
		}
		switch r.Type {
		case "hall":
			hall, err := domain.NewHall(r.ID, r.Capacity, slots)
			if err != nil {
				return nil, err
			}
			rooms = append(rooms, hall)
		case "lab":
			lab, err := domain.NewLab(r.ID, r.Capacity, slots, r.UsedInNonSpecialistCourses)
			if err != nil {
				return nil, err
			}
			rooms = append(rooms, lab)
		default:
			return nil, fmt.Errorf("room %s: unknown type %q", r.ID, r.Type)
		}
	}
	return rooms, nil
}

type staffRoster struct {
	lecturers map[string]*domain.Lecturer
	tas       map[string]*domain.TeachingAssistant
}

func convertStaff(reqs []dto.StaffRequest) (staffRoster, error) {
	roster := staffRoster{lecturers: map[string]*domain.Lecturer{}, tas: map[string]*domain.TeachingAssistant{}}
	for _, s := range reqs {
		prefs, err := convertWindows(s.Preferences)
		if err != nil {
			return staffRoster{}, fmt.Errorf("staff %s: %w", s.ID, err)
		}
		degree := domain.AcademicDegree(s.Degree)
		switch s.Variant {
		case "lecturer":
			lecturer, err := domain.NewLecturer(s.ID, s.Name, degree, prefs)
			if err != nil {
				return staffRoster{}, err
			}
			roster.lecturers[s.ID] = lecturer
		case "teaching_assistant":
			ta, err := domain.NewTeachingAssistant(s.ID, s.Name, degree, prefs)
			if err != nil {
				return staffRoster{}, err
			}
			roster.tas[s.ID] = ta
		default:
			return staffRoster{}, fmt.Errorf("staff %s: unknown variant %q", s.ID, s.Variant)
		}
	}
	return roster, nil
}

func convertCourseAssignment(req dto.CourseAssignmentRequest, roster staffRoster) (domain.CourseAssignment, error) {
	lecturers := make([]domain.LecturerGroup, 0, len(req.Lecturers))
	for _, lg := range req.Lecturers {
		lecturer, ok := roster.lecturers[lg.StaffID]
		if !ok {
			return domain.CourseAssignment{}, fmt.Errorf("course %s: lecturer %s not found in staff roster", req.CourseCode, lg.StaffID)
		}
		lecturers = append(lecturers, domain.LecturerGroup{Lecturer: lecturer, NumGroups: lg.NumGroups})
	}
	tas := make([]domain.TeachingAssistantGroup, 0, len(req.TeachingAssistants))
	for _, tg := range req.TeachingAssistants {
		ta, ok := roster.tas[tg.StaffID]
		if !ok {
			return domain.CourseAssignment{}, fmt.Errorf("course %s: teaching assistant %s not found in staff roster", req.CourseCode, tg.StaffID)
		}
		tas = append(tas, domain.TeachingAssistantGroup{Assistant: ta, NumGroups: tg.NumGroups})
	}
	course := domain.Course{Code: req.CourseCode, Name: req.CourseName}
	return domain.NewCourseAssignment(course, req.LectureGroups, req.LabGroups, lecturers, tas, req.LabGroups > 0, req.PracticalInLab, req.PreferredRooms)
}

func convertStudyPlans(reqs []dto.StudyPlanRequest, roster staffRoster) ([]domain.StudyPlan, error) {
	plans := make([]domain.StudyPlan, 0, len(reqs))
	for _, p := range reqs {
		academicList := domain.AcademicList{ID: p.AcademicListID, Name: p.AcademicListName}
		assignments := make([]domain.CourseAssignment, 0, len(p.CourseAssignments))
		for _, ca := range p.CourseAssignments {
			converted, err := convertCourseAssignment(ca, roster)
			if err != nil {
				return nil, fmt.Errorf("study plan %s: %w", p.ID, err)
			}
			assignments = append(assignments, converted)
			academicList.Courses = append(academicList.Courses, converted.Course)
		}
		plan, err := domain.NewStudyPlan(p.ID, academicList, p.AcademicLevel, p.ExpectedStudents, assignments)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
