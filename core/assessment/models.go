package assessment

import (
	"fmt"
	"time"

	"github.com/darasa-app/darasa/core"
)

// Test types
const (
	TypeQuiz       = "quiz"
	TypeAssignment = "assignment"
	TypeExam       = "exam"
)

// Assessment is a teacher-authored test bound to a batch. The answer key
// is write-only: it is accepted on create/update and used for scoring,
// but never serialized back to API clients.
type Assessment struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	TestType      string                 `json:"test_type"`
	BatchID       string                 `json:"batch_id"`
	ScheduledDate time.Time              `json:"scheduled_date"`
	Questionnaire interface{}            `json:"questionnaire"`
	AnswerKey     map[string]interface{} `json:"-"`
	TotalMarks    float64                `json:"total_marks"`
	CreatedByID   string                 `json:"created_by_id"`
	CreatedAt     time.Time              `json:"created_at"` // UTC
	UpdatedAt     time.Time              `json:"updated_at"` // UTC

	// read-only, filled on queries
	BatchName string `json:"batch_name,omitempty"`
}

type NewAssessment struct {
	Title         string                 `json:"title" validate:"required"`
	Description   string                 `json:"description"`
	TestType      string                 `json:"test_type" validate:"omitempty,oneof=quiz assignment exam"`
	BatchID       string                 `json:"batch_id" validate:"required"`
	ScheduledDate string                 `json:"scheduled_date" validate:"omitempty,datetime=2006-01-02"`
	Questionnaire interface{}            `json:"questionnaire"`
	AnswerKey     map[string]interface{} `json:"answer_key"`
}

func (na *NewAssessment) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.TestType = core.CleanString(na.TestType, true /* lower */)
	return core.Validate.Struct(na)
}

type UpdateAssessment struct {
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	TestType      string                 `json:"test_type" validate:"omitempty,oneof=quiz assignment exam"`
	ScheduledDate string                 `json:"scheduled_date" validate:"omitempty,datetime=2006-01-02"`
	Questionnaire interface{}            `json:"questionnaire"`
	AnswerKey     map[string]interface{} `json:"answer_key"`
}

func (ua *UpdateAssessment) Validate() error {
	ua.Title = core.CleanString(ua.Title)
	ua.Description = core.CleanString(ua.Description)
	ua.TestType = core.CleanString(ua.TestType, true /* lower */)
	return core.Validate.Struct(ua)
}

// Submission is a student's final, scored attempt at an assessment.
// The score is server-computed and immutable once created.
type Submission struct {
	ID           string                 `json:"id"`
	AssessmentID string                 `json:"assessment_id"`
	StudentID    string                 `json:"student_id"`
	Answers      map[string]interface{} `json:"answers"`
	Score        float64                `json:"score"`
	SubmittedAt  time.Time              `json:"submitted_at"` // UTC

	// read-only, filled on queries
	AssessmentTitle string  `json:"assessment_title,omitempty"`
	StudentName     string  `json:"student_name,omitempty"`
	TotalMarks      float64 `json:"total_marks,omitempty"`
}

type NewSubmission struct {
	Answers map[string]interface{} `json:"answers" validate:"required"`
}

func (ns *NewSubmission) Validate() error {
	return core.Validate.Struct(ns)
}

// AlreadySubmittedError rejects a duplicate submission and carries the
// existing one so callers can display it.
type AlreadySubmittedError struct {
	Submission Submission
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("assessment already submitted on %s", e.Submission.SubmittedAt.Format(time.RFC3339))
}

// StudentScore pairs a student with an aggregate score figure.
type StudentScore struct {
	StudentID    string  `json:"student_id"`
	StudentName  string  `json:"student_name"`
	RollNo       string  `json:"roll_no"`
	AverageScore float64 `json:"average_score"`
	Submissions  int     `json:"submissions"`
}

// ScoreTrendPoint is one month of a student's average score.
type ScoreTrendPoint struct {
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	AverageScore float64 `json:"average_score"`
	Submissions  int     `json:"submissions"`
}

type QueryFilter struct {
	BatchID  string `query:"batch_id"`
	TestType string `query:"test_type"`

	// set by the API layer from ?ordering=; unknown fields are ignored
	Ordering []core.DBOrdering `query:"-"`
}

type SubmissionFilter struct {
	AssessmentID string `query:"assessment_id"`
	StudentID    string `query:"student_id"`
	BatchID      string `query:"batch_id"`
}
