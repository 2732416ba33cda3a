package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/assessment"
)

type assessmentRepository struct {
	db *sqlx.DB
}

func NewAssessmentRepository(db *sqlx.DB) *assessmentRepository {
	return &assessmentRepository{db: db}
}

type assessmentRow struct {
	ID            string          `db:"id"`
	Title         string          `db:"title"`
	Description   null.String     `db:"description"`
	TestType      string          `db:"test_type"`
	BatchID       string          `db:"batch_id"`
	ScheduledDate null.Time       `db:"scheduled_date"`
	Questionnaire json.RawMessage `db:"questionnaire"`
	AnswerKey     json.RawMessage `db:"answer_key"`
	TotalMarks    float64         `db:"total_marks"`
	CreatedByID   null.String     `db:"created_by"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	BatchName     null.String     `db:"batch_name"`
}

func (r assessmentRow) toAssessment() (assessment.Assessment, error) {
	a := assessment.Assessment{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description.String,
		TestType:      r.TestType,
		BatchID:       r.BatchID,
		ScheduledDate: r.ScheduledDate.Time,
		TotalMarks:    r.TotalMarks,
		CreatedByID:   r.CreatedByID.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		BatchName:     r.BatchName.String,
	}
	if len(r.Questionnaire) > 0 {
		if err := json.Unmarshal(r.Questionnaire, &a.Questionnaire); err != nil {
			return assessment.Assessment{}, errors.Wrap(err, "decoding questionnaire")
		}
	}
	if len(r.AnswerKey) > 0 {
		if err := json.Unmarshal(r.AnswerKey, &a.AnswerKey); err != nil {
			return assessment.Assessment{}, errors.Wrap(err, "decoding answer key")
		}
	}
	return a, nil
}

func marshalJSONB(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding jsonb")
	}
	return raw, nil
}

const assessmentSelect = `
	SELECT a.id, a.title, a.description, a.test_type, a.batch_id, a.scheduled_date, a.questionnaire,
	       a.answer_key, a.total_marks, a.created_by, a.created_at, a.updated_at, b.name AS batch_name
	FROM assessment a
	JOIN batch b ON b.id = a.batch_id`

func (repo *assessmentRepository) CreateAssessment(ctx context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	questionnaire, err := marshalJSONB(a.Questionnaire)
	if err != nil {
		return assessment.Assessment{}, err
	}
	answerKey, err := marshalJSONB(a.AnswerKey)
	if err != nil {
		return assessment.Assessment{}, err
	}

	query := `
		INSERT INTO assessment (id, title, description, test_type, batch_id, scheduled_date, questionnaire,
		                        answer_key, total_marks, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = repo.db.ExecContext(ctx, query,
		a.ID, a.Title, null.NewString(a.Description, a.Description != ""), a.TestType, a.BatchID,
		null.NewTime(a.ScheduledDate, !a.ScheduledDate.IsZero()), questionnaire, answerKey,
		a.TotalMarks, null.NewString(a.CreatedByID, a.CreatedByID != ""), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "creating assessment")
	}
	return a, nil
}

var assessmentOrderColumns = map[string]string{
	"title":          "a.title",
	"test_type":      "a.test_type",
	"scheduled_date": "a.scheduled_date",
	"total_marks":    "a.total_marks",
	"created_at":     "a.created_at",
}

func (repo *assessmentRepository) QueryAssessments(ctx context.Context, qf assessment.QueryFilter) ([]assessment.Assessment, error) {
	query := assessmentSelect + ` WHERE 1=1`
	var args []interface{}
	if qf.BatchID != "" {
		args = append(args, qf.BatchID)
		query += ` AND a.batch_id = ?`
	}
	if qf.TestType != "" {
		args = append(args, qf.TestType)
		query += ` AND a.test_type = ?`
	}
	query += orderBy(qf.Ordering, assessmentOrderColumns, ` ORDER BY a.created_at DESC`)
	query = repo.db.Rebind(query)

	var rows []assessmentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}
	assessments := make([]assessment.Assessment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toAssessment()
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	return assessments, nil
}

func (repo *assessmentRepository) GetAssessmentByID(ctx context.Context, id string) (assessment.Assessment, error) {
	var row assessmentRow
	if err := repo.db.GetContext(ctx, &row, assessmentSelect+` WHERE a.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return assessment.Assessment{}, assessment.ErrNotFound
		}
		return assessment.Assessment{}, errors.Wrap(err, "getting assessment")
	}
	return row.toAssessment()
}

func (repo *assessmentRepository) UpdateAssessment(ctx context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	questionnaire, err := marshalJSONB(a.Questionnaire)
	if err != nil {
		return assessment.Assessment{}, err
	}
	answerKey, err := marshalJSONB(a.AnswerKey)
	if err != nil {
		return assessment.Assessment{}, err
	}

	query := `
		UPDATE assessment
		SET title = $2, description = $3, test_type = $4, scheduled_date = $5, questionnaire = $6,
		    answer_key = $7, total_marks = $8, updated_at = $9
		WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		a.ID, a.Title, null.NewString(a.Description, a.Description != ""), a.TestType,
		null.NewTime(a.ScheduledDate, !a.ScheduledDate.IsZero()), questionnaire, answerKey,
		a.TotalMarks, a.UpdatedAt,
	)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "updating assessment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return a, nil
}

func (repo *assessmentRepository) DeleteAssessment(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assessment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.ErrNotFound
	}
	return nil
}

// submissions

type submissionRow struct {
	ID              string          `db:"id"`
	AssessmentID    string          `db:"assessment_id"`
	StudentID       string          `db:"student_id"`
	Answers         json.RawMessage `db:"answers"`
	Score           float64         `db:"score"`
	SubmittedAt     time.Time       `db:"submitted_at"`
	AssessmentTitle null.String     `db:"assessment_title"`
	StudentName     null.String     `db:"student_name"`
	TotalMarks      null.Float64    `db:"total_marks"`
}

func (r submissionRow) toSubmission() (assessment.Submission, error) {
	sub := assessment.Submission{
		ID:              r.ID,
		AssessmentID:    r.AssessmentID,
		StudentID:       r.StudentID,
		Score:           r.Score,
		SubmittedAt:     r.SubmittedAt,
		AssessmentTitle: r.AssessmentTitle.String,
		StudentName:     r.StudentName.String,
		TotalMarks:      r.TotalMarks.Float64,
	}
	if len(r.Answers) > 0 {
		if err := json.Unmarshal(r.Answers, &sub.Answers); err != nil {
			return assessment.Submission{}, errors.Wrap(err, "decoding answers")
		}
	}
	return sub, nil
}

const submissionSelect = `
	SELECT s.id, s.assessment_id, s.student_id, s.answers, s.score, s.submitted_at,
	       a.title AS assessment_title, a.total_marks AS total_marks,
	       (sp.first_name || ' ' || sp.last_name) AS student_name
	FROM assessment_submission s
	JOIN assessment a ON a.id = s.assessment_id
	JOIN student_profile sp ON sp.id = s.student_id`

func (repo *assessmentRepository) CreateSubmission(ctx context.Context, sub assessment.Submission, exec ...core.DBExecutor) (assessment.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	answers, err := marshalJSONB(sub.Answers)
	if err != nil {
		return assessment.Submission{}, err
	}

	query := `
		INSERT INTO assessment_submission (id, assessment_id, student_id, answers, score, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = ext(repo.db, exec).ExecContext(ctx, query,
		sub.ID, sub.AssessmentID, sub.StudentID, answers, sub.Score, sub.SubmittedAt,
	)
	if err != nil {
		if uniqueViolation(err, "submission_assessment_student_uix") {
			return assessment.Submission{}, assessment.ErrDuplicateSubmission
		}
		return assessment.Submission{}, errors.Wrap(err, "creating submission")
	}
	return sub, nil
}

func (repo *assessmentRepository) GetSubmission(ctx context.Context, assessmentID, studentID string) (assessment.Submission, error) {
	var row submissionRow
	query := submissionSelect + ` WHERE s.assessment_id = $1 AND s.student_id = $2`
	if err := repo.db.GetContext(ctx, &row, query, assessmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return assessment.Submission{}, assessment.ErrSubmissionNotFound
		}
		return assessment.Submission{}, errors.Wrap(err, "getting submission")
	}
	return row.toSubmission()
}

func (repo *assessmentRepository) QuerySubmissions(ctx context.Context, sf assessment.SubmissionFilter) ([]assessment.Submission, error) {
	query := submissionSelect + ` WHERE 1=1`
	var args []interface{}
	if sf.AssessmentID != "" {
		args = append(args, sf.AssessmentID)
		query += ` AND s.assessment_id = ?`
	}
	if sf.StudentID != "" {
		args = append(args, sf.StudentID)
		query += ` AND s.student_id = ?`
	}
	if sf.BatchID != "" {
		args = append(args, sf.BatchID)
		query += ` AND sp.batch_id = ?`
	}
	query += ` ORDER BY s.submitted_at DESC`
	query = repo.db.Rebind(query)

	var rows []submissionRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]assessment.Submission, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toSubmission()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
