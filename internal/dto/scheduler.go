package dto

// TimeWindowRequest is a (day, start, end) window used both as a room
// availability entry and as a staff timing preference.
type TimeWindowRequest struct {
	Day       string `json:"day" validate:"required,oneof=SUNDAY MONDAY TUESDAY WEDNESDAY THURSDAY"`
	StartHour int    `json:"startHour" validate:"required,min=0,max=23"`
	EndHour   int    `json:"endHour" validate:"required,gtfield=StartHour,max=24"`
}

// RoomRequest describes one Hall or Lab in the inventory.
type RoomRequest struct {
	ID                         string              `json:"id" validate:"required"`
	Type                       string              `json:"type" validate:"required,oneof=hall lab"`
	Capacity                   int                 `json:"capacity" validate:"required,min=1"`
	Availability               []TimeWindowRequest `json:"availability" validate:"required,min=1,dive"`
	UsedInNonSpecialistCourses bool                `json:"usedInNonSpecialistCourses"`
}

// StaffRequest describes one Lecturer or TeachingAssistant.
type StaffRequest struct {
	ID          string              `json:"id" validate:"required"`
	Name        string              `json:"name" validate:"required"`
	Variant     string              `json:"variant" validate:"required,oneof=lecturer teaching_assistant"`
	Degree      string              `json:"degree" validate:"required"`
	Preferences []TimeWindowRequest `json:"preferences"`
}

// StaffGroupRequest pairs a staff member with the number of groups they
// cover within one course assignment.
type StaffGroupRequest struct {
	StaffID   string `json:"staffId" validate:"required"`
	NumGroups int    `json:"numGroups" validate:"required,min=1"`
}

// CourseAssignmentRequest is one (study-plan, course) staffing record.
type CourseAssignmentRequest struct {
	CourseCode         string              `json:"courseCode" validate:"required"`
	CourseName         string              `json:"courseName" validate:"required"`
	LectureGroups      int                 `json:"lectureGroups" validate:"required,min=1"`
	LabGroups          int                 `json:"labGroups" validate:"min=0"`
	Lecturers          []StaffGroupRequest `json:"lecturers" validate:"required,min=1,dive"`
	TeachingAssistants []StaffGroupRequest `json:"teachingAssistants" validate:"dive"`
	PracticalInLab     bool                `json:"practicalInLab"`
	PreferredRooms     []string            `json:"preferredRooms"`
	IsCommon           bool                `json:"isCommon"`
}

// StudyPlanRequest bundles one cohort's course assignments.
type StudyPlanRequest struct {
	ID                string                     `json:"id" validate:"required"`
	AcademicListID    string                     `json:"academicListId" validate:"required"`
	AcademicListName  string                     `json:"academicListName" validate:"required"`
	AcademicLevel     int                        `json:"academicLevel" validate:"required,min=1"`
	ExpectedStudents  int                        `json:"expectedStudents" validate:"required,min=1"`
	CourseAssignments []CourseAssignmentRequest  `json:"courseAssignments" validate:"required,min=1,dive"`
}

// GenerateScheduleRequest is the full scheduling run payload: the
// immutable entity universe (rooms, staff) plus the demand (study plans)
// for one run. There is no remote ingestion boundary here by design --
// the caller supplies a self-contained snapshot.
type GenerateScheduleRequest struct {
	TermID                   string             `json:"termId" validate:"required"`
	ClassID                  string             `json:"classId" validate:"required"`
	Rooms                    []RoomRequest      `json:"rooms" validate:"required,min=1,dive"`
	Staff                    []StaffRequest     `json:"staff" validate:"required,min=1,dive"`
	StudyPlans               []StudyPlanRequest `json:"studyPlans" validate:"required,min=1,dive"`
	MaxAttempts              int                `json:"maxAttempts" validate:"omitempty,min=1,max=1000"`
	MaxLocalSearchIterations int                `json:"maxLocalSearchIterations" validate:"omitempty,min=1,max=1000"`
	Concurrency              int                `json:"concurrency" validate:"omitempty,min=1,max=32"`
}

// AssignmentResponse is one placed session atom.
type AssignmentResponse struct {
	BlockID      string `json:"blockId"`
	CourseCode   string `json:"courseCode"`
	BlockType    string `json:"blockType"`
	StaffID      string `json:"staffId"`
	Day          string `json:"day"`
	StartHour    int    `json:"startHour"`
	EndHour      int    `json:"endHour"`
	RoomID       string `json:"roomId"`
	StudentCount int    `json:"studentCount"`
}

// DiagnosticMessage is one ERROR/WARNING/INFO finding from input or
// schedule validation.
type DiagnosticMessage struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// GenerateScheduleResponse returns the built timetable proposal.
type GenerateScheduleResponse struct {
	ProposalID  string               `json:"proposalId"`
	Score       float64              `json:"score"`
	Coverage    float64              `json:"coverage"`
	Assignments []AssignmentResponse `json:"assignments"`
	Unassigned  []string             `json:"unassigned"`
	Diagnostics []DiagnosticMessage  `json:"diagnostics"`
}

// SaveScheduleRequest persists a previously generated proposal.
type SaveScheduleRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
}

// SemesterScheduleQuery filters schedule summaries by class and term.
type SemesterScheduleQuery struct {
	TermID  string `form:"termId" json:"termId"`
	ClassID string `form:"classId" json:"classId"`
}
