package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/assessment"
)

type assessmentRepository struct {
	db *DB
}

func NewAssessmentRepository(db *DB) assessment.Repository {
	return &assessmentRepository{db: db}
}

func (repo *assessmentRepository) annotate(a assessment.Assessment) assessment.Assessment {
	if b, ok := repo.db.batches[a.BatchID]; ok {
		a.BatchName = b.Name
	}
	return a
}

func (repo *assessmentRepository) CreateAssessment(_ context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	repo.db.assessments[a.ID] = &a
	return a, nil
}

func (repo *assessmentRepository) QueryAssessments(_ context.Context, qf assessment.QueryFilter) ([]assessment.Assessment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	assessments := make([]assessment.Assessment, 0, len(repo.db.assessments))
	for _, a := range repo.db.assessments {
		if qf.BatchID != "" && a.BatchID != qf.BatchID {
			continue
		}
		if qf.TestType != "" && a.TestType != qf.TestType {
			continue
		}
		assessments = append(assessments, repo.annotate(*a))
	}
	sortAssessments(assessments, qf.Ordering)
	return assessments, nil
}

func compareAssessments(a, b assessment.Assessment, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "test_type":
		return strings.Compare(a.TestType, b.TestType)
	case "scheduled_date":
		return compareTimes(a.ScheduledDate, b.ScheduledDate)
	case "total_marks":
		return compareFloats(a.TotalMarks, b.TotalMarks)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func sortAssessments(assessments []assessment.Assessment, orderings []core.DBOrdering) {
	if len(orderings) == 0 {
		sort.Slice(assessments, func(i, j int) bool { return assessments[i].CreatedAt.After(assessments[j].CreatedAt) })
		return
	}
	sort.SliceStable(assessments, func(i, j int) bool {
		for _, ord := range orderings {
			cmp := compareAssessments(assessments[i], assessments[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func (repo *assessmentRepository) GetAssessmentByID(_ context.Context, id string) (assessment.Assessment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.assessments[id]; ok {
		return repo.annotate(*a), nil
	}
	return assessment.Assessment{}, assessment.ErrNotFound
}

func (repo *assessmentRepository) UpdateAssessment(_ context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assessments[a.ID]; !ok {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	repo.db.assessments[a.ID] = &a
	return a, nil
}

func (repo *assessmentRepository) DeleteAssessment(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assessments[id]; !ok {
		return assessment.ErrNotFound
	}
	delete(repo.db.assessments, id)
	for sid, sub := range repo.db.submissions {
		if sub.AssessmentID == id {
			delete(repo.db.submissions, sid)
		}
	}
	return nil
}

// submissions

func (repo *assessmentRepository) CreateSubmission(_ context.Context, sub assessment.Submission, _ ...core.DBExecutor) (assessment.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// authoritative guard, like the DB unique index
	for _, existing := range repo.db.submissions {
		if existing.AssessmentID == sub.AssessmentID && existing.StudentID == sub.StudentID {
			return assessment.Submission{}, assessment.ErrDuplicateSubmission
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *assessmentRepository) annotateSubmission(sub assessment.Submission) assessment.Submission {
	if a, ok := repo.db.assessments[sub.AssessmentID]; ok {
		sub.AssessmentTitle = a.Title
		sub.TotalMarks = a.TotalMarks
	}
	if sp, ok := repo.db.studentProfiles[sub.StudentID]; ok {
		sub.StudentName = sp.FullName()
	}
	return sub
}

func (repo *assessmentRepository) GetSubmission(_ context.Context, assessmentID, studentID string) (assessment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sub := range repo.db.submissions {
		if sub.AssessmentID == assessmentID && sub.StudentID == studentID {
			return repo.annotateSubmission(*sub), nil
		}
	}
	return assessment.Submission{}, assessment.ErrSubmissionNotFound
}

func (repo *assessmentRepository) QuerySubmissions(_ context.Context, sf assessment.SubmissionFilter) ([]assessment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]assessment.Submission, 0)
	for _, sub := range repo.db.submissions {
		if sf.AssessmentID != "" && sub.AssessmentID != sf.AssessmentID {
			continue
		}
		if sf.StudentID != "" && sub.StudentID != sf.StudentID {
			continue
		}
		if sf.BatchID != "" {
			sp, ok := repo.db.studentProfiles[sub.StudentID]
			if !ok || sp.BatchID != sf.BatchID {
				continue
			}
		}
		subs = append(subs, repo.annotateSubmission(*sub))
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, nil
}
