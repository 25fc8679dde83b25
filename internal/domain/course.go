package domain

import "fmt"

// Course is a catalog entry taught as part of one or more study plans.
type Course struct {
	Code string
	Name string
}

// AcademicList is the curriculum for one cohort: a named group of
// students and the set of courses they take together. Academic level
// lives on StudyPlan, not here, since the same academic list can be
// offered to more than one level.
type AcademicList struct {
	ID      string
	Name    string
	Courses []Course
}

// LecturerGroup assigns a Lecturer to teach a number of lecture groups of
// a course within one study plan.
type LecturerGroup struct {
	Lecturer  *Lecturer
	NumGroups int
}

// TeachingAssistantGroup assigns a TeachingAssistant to teach a number of
// practical groups of a course within one study plan.
type TeachingAssistantGroup struct {
	Assistant *TeachingAssistant
	NumGroups int
}

// CourseAssignment binds one course to its staffing for a single study
// plan: how many lecture/lab groups it splits into and who teaches them.
type CourseAssignment struct {
	Course             Course
	LectureGroups      int
	LabGroups          int
	Lecturers          []LecturerGroup
	TeachingAssistants []TeachingAssistantGroup
	LabRequired        bool
	PracticalInLab     bool
	PreferredRooms     []string
}

// NewCourseAssignment validates and constructs a CourseAssignment,
// enforcing the same group-count invariants as the source scheduling
// engine: lecturer group counts must sum to the lecture-group count, and
// if any lab groups are requested teaching assistants must be assigned
// and sum to that count too.
func NewCourseAssignment(course Course, lectureGroups, labGroups int, lecturers []LecturerGroup, tas []TeachingAssistantGroup, labRequired, practicalInLab bool, preferredRooms []string) (CourseAssignment, error) {
	if lectureGroups <= 0 {
		return CourseAssignment{}, fmt.Errorf("course assignment %s: lecture_groups must be positive", course.Code)
	}
	if len(lecturers) == 0 {
		return CourseAssignment{}, fmt.Errorf("course assignment %s: at least one lecturer is required", course.Code)
	}
	lecturerTotal := 0
	for _, lg := range lecturers {
		lecturerTotal += lg.NumGroups
	}
	if lecturerTotal != lectureGroups {
		return CourseAssignment{}, fmt.Errorf("course assignment %s: lecturer group counts sum to %d, want %d", course.Code, lecturerTotal, lectureGroups)
	}
	if labGroups > 0 {
		if len(tas) == 0 {
			return CourseAssignment{}, fmt.Errorf("course assignment %s: lab_groups > 0 requires teaching assistants", course.Code)
		}
		taTotal := 0
		for _, tg := range tas {
			taTotal += tg.NumGroups
		}
		if taTotal != labGroups {
			return CourseAssignment{}, fmt.Errorf("course assignment %s: teaching assistant group counts sum to %d, want %d", course.Code, taTotal, labGroups)
		}
	}
	return CourseAssignment{
		Course:             course,
		LectureGroups:      lectureGroups,
		LabGroups:          labGroups,
		Lecturers:          append([]LecturerGroup(nil), lecturers...),
		TeachingAssistants: append([]TeachingAssistantGroup(nil), tas...),
		LabRequired:        labRequired,
		PracticalInLab:     practicalInLab,
		PreferredRooms:     append([]string(nil), preferredRooms...),
	}, nil
}

// StudyPlan is one cohort's concrete schedule request: a student count
// at a given academic level against an academic list, staffed per
// course via CourseAssignments.
type StudyPlan struct {
	ID                string
	AcademicList      AcademicList
	AcademicLevel     int
	ExpectedStudents  int
	CourseAssignments []CourseAssignment
}

// NewStudyPlan validates and constructs a StudyPlan.
func NewStudyPlan(id string, academicList AcademicList, academicLevel, expectedStudents int, assignments []CourseAssignment) (StudyPlan, error) {
	if academicLevel < 1 {
		return StudyPlan{}, fmt.Errorf("study plan %s: academic level must be >= 1", id)
	}
	if expectedStudents <= 0 {
		return StudyPlan{}, fmt.Errorf("study plan %s: expected_students must be positive", id)
	}
	if len(assignments) == 0 {
		return StudyPlan{}, fmt.Errorf("study plan %s: at least one course assignment is required", id)
	}
	return StudyPlan{
		ID:                id,
		AcademicList:      academicList,
		AcademicLevel:     academicLevel,
		ExpectedStudents:  expectedStudents,
		CourseAssignments: append([]CourseAssignment(nil), assignments...),
	}, nil
}
