package assessment

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/student"
)

var (
	// errors
	ErrNotFound           = errors.New("assessment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotEligible        = errors.New("student's batch is not eligible for this assessment")

	// ErrDuplicateSubmission is the storage-level sentinel for a
	// (assessment, student) uniqueness violation; the service translates
	// it into an AlreadySubmittedError with the prior submission attached.
	ErrDuplicateSubmission = errors.New("submission already exists")
)

type (
	Repository interface {
		CreateAssessment(ctx context.Context, a Assessment) (Assessment, error)
		QueryAssessments(ctx context.Context, qf QueryFilter) ([]Assessment, error)
		GetAssessmentByID(ctx context.Context, id string) (Assessment, error)
		UpdateAssessment(ctx context.Context, a Assessment) (Assessment, error)
		DeleteAssessment(ctx context.Context, id string) error

		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, assessmentID, studentID string) (Submission, error)
		QuerySubmissions(ctx context.Context, sf SubmissionFilter) ([]Submission, error)
	}

	Service struct {
		db          core.Transactor
		repo        Repository
		studentRepo student.Repository
	}
)

func NewService(db core.Transactor, repo Repository, studentRepo student.Repository) *Service {
	return &Service{db: db, repo: repo, studentRepo: studentRepo}
}

func (svc *Service) Repo() Repository { return svc.repo }

func (svc *Service) Create(ctx context.Context, createdByID string, na NewAssessment) (Assessment, error) {
	if _, err := svc.studentRepo.GetBatchByID(ctx, na.BatchID); err != nil {
		return Assessment{}, err
	}
	now := time.Now().UTC()
	a := Assessment{
		Title:         na.Title,
		Description:   na.Description,
		TestType:      na.TestType,
		BatchID:       na.BatchID,
		ScheduledDate: student.ParseDate(na.ScheduledDate),
		Questionnaire: na.Questionnaire,
		AnswerKey:     na.AnswerKey,
		TotalMarks:    TotalMarks(na.AnswerKey),
		CreatedByID:   createdByID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateAssessment(ctx, a)
}

func (svc *Service) Query(ctx context.Context, qf QueryFilter) ([]Assessment, error) {
	return svc.repo.QueryAssessments(ctx, qf)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Assessment, error) {
	return svc.repo.GetAssessmentByID(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id string, ua UpdateAssessment) (Assessment, error) {
	a, err := svc.repo.GetAssessmentByID(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if ua.Title != "" {
		a.Title = ua.Title
	}
	if ua.Description != "" {
		a.Description = ua.Description
	}
	if ua.TestType != "" {
		a.TestType = ua.TestType
	}
	if ua.ScheduledDate != "" {
		a.ScheduledDate = student.ParseDate(ua.ScheduledDate)
	}
	if ua.Questionnaire != nil {
		a.Questionnaire = ua.Questionnaire
	}
	if ua.AnswerKey != nil {
		a.AnswerKey = ua.AnswerKey
		a.TotalMarks = TotalMarks(ua.AnswerKey)
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssessment(ctx, a)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAssessment(ctx, id)
}

// Submit grades and records a student's attempt. Eligibility is checked
// first, then the duplicate guard, then scoring; the score is always
// computed here, never taken from the client.
func (svc *Service) Submit(ctx context.Context, assessmentID, studentID string, ns NewSubmission) (Submission, error) {
	a, err := svc.repo.GetAssessmentByID(ctx, assessmentID)
	if err != nil {
		return Submission{}, err
	}
	prof, err := svc.studentRepo.GetStudentProfileByID(ctx, studentID)
	if err != nil {
		return Submission{}, err
	}
	if a.BatchID != "" && a.BatchID != prof.BatchID {
		return Submission{}, ErrNotEligible
	}

	if existing, err := svc.repo.GetSubmission(ctx, a.ID, prof.ID); err == nil {
		return Submission{}, &AlreadySubmittedError{Submission: existing}
	} else if errors.Cause(err) != ErrSubmissionNotFound {
		return Submission{}, err
	}

	sub := Submission{
		AssessmentID: a.ID,
		StudentID:    prof.ID,
		Answers:      ns.Answers,
		Score:        Score(a.AnswerKey, ns.Answers),
		SubmittedAt:  time.Now().UTC(),
	}
	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		sub, err = svc.repo.CreateSubmission(ctx, sub, exec)
		return err
	})
	if errors.Cause(err) == ErrDuplicateSubmission {
		// race loser: the pre-check passed but another submission landed
		// first; surface that one instead of the raw constraint violation
		if existing, gerr := svc.repo.GetSubmission(ctx, a.ID, prof.ID); gerr == nil {
			return Submission{}, &AlreadySubmittedError{Submission: existing}
		}
		return Submission{}, err
	}
	if err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (svc *Service) GetSubmission(ctx context.Context, assessmentID, studentID string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, assessmentID, studentID)
}

func (svc *Service) QuerySubmissions(ctx context.Context, sf SubmissionFilter) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, sf)
}

// Analytics

// ScoreHistory lists a student's submissions, most recent first.
func (svc *Service) ScoreHistory(ctx context.Context, studentID string) ([]Submission, error) {
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, nil
}

// AverageScore is the mean score of a student's submissions, 0 with none.
func (svc *Service) AverageScore(ctx context.Context, studentID string) (float64, error) {
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{StudentID: studentID})
	if err != nil {
		return 0, err
	}
	return meanScore(subs), nil
}

// ScoreTrend returns the student's month-by-month average score, oldest
// month first.
func (svc *Service) ScoreTrend(ctx context.Context, studentID string) ([]ScoreTrendPoint, error) {
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}

	type yearMonth struct{ year, month int }
	byMonth := lo.GroupBy(subs, func(sub Submission) yearMonth {
		return yearMonth{sub.SubmittedAt.Year(), int(sub.SubmittedAt.Month())}
	})

	trend := make([]ScoreTrendPoint, 0, len(byMonth))
	for ym, monthSubs := range byMonth {
		trend = append(trend, ScoreTrendPoint{
			Year:         ym.year,
			Month:        ym.month,
			AverageScore: meanScore(monthSubs),
			Submissions:  len(monthSubs),
		})
	}
	sort.Slice(trend, func(i, j int) bool {
		if trend[i].Year != trend[j].Year {
			return trend[i].Year < trend[j].Year
		}
		return trend[i].Month < trend[j].Month
	})
	return trend, nil
}

// BatchScores aggregates per-student averages across a batch, best first.
func (svc *Service) BatchScores(ctx context.Context, batchID string) ([]StudentScore, error) {
	profs, err := svc.studentRepo.QueryStudentProfiles(ctx, student.QueryFilter{BatchID: batchID})
	if err != nil {
		return nil, err
	}
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{BatchID: batchID})
	if err != nil {
		return nil, err
	}

	byStudent := lo.GroupBy(subs, func(sub Submission) string { return sub.StudentID })

	scores := make([]StudentScore, 0, len(profs))
	for _, prof := range profs {
		studentSubs := byStudent[prof.ID]
		scores = append(scores, StudentScore{
			StudentID:    prof.ID,
			StudentName:  prof.FullName(),
			RollNo:       prof.RollNo,
			AverageScore: meanScore(studentSubs),
			Submissions:  len(studentSubs),
		})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].AverageScore > scores[j].AverageScore })
	return scores, nil
}

// BatchAverageScore is the mean over all submissions of a batch.
func (svc *Service) BatchAverageScore(ctx context.Context, batchID string) (float64, error) {
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{BatchID: batchID})
	if err != nil {
		return 0, err
	}
	return meanScore(subs), nil
}

// TopStudents returns the n best-performing students of a batch.
func (svc *Service) TopStudents(ctx context.Context, batchID string, n int) ([]StudentScore, error) {
	scores, err := svc.BatchScores(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return lo.Slice(scores, 0, n), nil
}

func meanScore(subs []Submission) float64 {
	if len(subs) == 0 {
		return 0
	}
	total := lo.SumBy(subs, func(sub Submission) float64 { return sub.Score })
	return math.Round(total/float64(len(subs))*100) / 100
}
