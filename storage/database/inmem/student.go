package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/student"
)

type studentRepository struct {
	db *DB
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

// batches

func (repo *studentRepository) CreateBatch(_ context.Context, b student.Batch) (student.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.batches {
		if existing.Name == b.Name {
			return student.Batch{}, student.ErrBatchNameExists
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	repo.db.batches[b.ID] = &b
	return b, nil
}

func (repo *studentRepository) QueryAllBatches(_ context.Context) ([]student.Batch, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	batches := make([]student.Batch, 0, len(repo.db.batches))
	for _, b := range repo.db.batches {
		batches = append(batches, *b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Name < batches[j].Name })
	return batches, nil
}

func (repo *studentRepository) GetBatchByID(_ context.Context, id string) (student.Batch, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if b, ok := repo.db.batches[id]; ok {
		return *b, nil
	}
	return student.Batch{}, student.ErrBatchNotFound
}

func (repo *studentRepository) UpdateBatch(_ context.Context, b student.Batch) (student.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.batches[b.ID]; !ok {
		return student.Batch{}, student.ErrBatchNotFound
	}
	for _, existing := range repo.db.batches {
		if existing.ID != b.ID && existing.Name == b.Name {
			return student.Batch{}, student.ErrBatchNameExists
		}
	}
	repo.db.batches[b.ID] = &b
	return b, nil
}

func (repo *studentRepository) DeleteBatch(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.batches[id]; !ok {
		return student.ErrBatchNotFound
	}
	delete(repo.db.batches, id)
	// ON DELETE SET NULL
	for _, prof := range repo.db.studentProfiles {
		if prof.BatchID == id {
			prof.BatchID = ""
		}
	}
	return nil
}

// student profiles

func (repo *studentRepository) CreateStudentProfile(_ context.Context, sp student.StudentProfile, _ ...core.DBExecutor) (student.StudentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if sp.RollNo != "" {
		for _, existing := range repo.db.studentProfiles {
			if existing.RollNo == sp.RollNo {
				return student.StudentProfile{}, student.ErrRollNoExists
			}
		}
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	repo.db.studentProfiles[sp.ID] = &sp
	return sp, nil
}

// annotate fills the read-only display fields the way the SQL joins do.
func (repo *studentRepository) annotate(sp student.StudentProfile) student.StudentProfile {
	if usr, ok := repo.db.users[sp.UserID]; ok {
		sp.Username = usr.Username
	}
	if b, ok := repo.db.batches[sp.BatchID]; ok {
		sp.BatchName = b.Name
	}
	return sp
}

func matchesFilter(sp student.StudentProfile, qf student.QueryFilter) bool {
	if qf.BatchID != "" && sp.BatchID != qf.BatchID {
		return false
	}
	if qf.Course != "" && !strings.EqualFold(sp.Course, qf.Course) {
		return false
	}
	if qf.Search != "" {
		search := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(sp.FirstName), search) &&
			!strings.Contains(strings.ToLower(sp.LastName), search) &&
			!strings.Contains(strings.ToLower(sp.RollNo), search) {
			return false
		}
	}
	return true
}

func (repo *studentRepository) QueryStudentProfiles(_ context.Context, qf student.QueryFilter) ([]student.StudentProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	profs := make([]student.StudentProfile, 0, len(repo.db.studentProfiles))
	for _, sp := range repo.db.studentProfiles {
		if matchesFilter(*sp, qf) {
			profs = append(profs, repo.annotate(*sp))
		}
	}
	sortProfiles(profs, qf.Ordering)
	return profs, nil
}

func compareProfiles(a, b student.StudentProfile, field string) int {
	switch field {
	case "first_name":
		return strings.Compare(a.FirstName, b.FirstName)
	case "last_name":
		return strings.Compare(a.LastName, b.LastName)
	case "roll_no":
		return strings.Compare(a.RollNo, b.RollNo)
	case "course":
		return strings.Compare(a.Course, b.Course)
	case "joining_date":
		return compareTimes(a.JoiningDate, b.JoiningDate)
	}
	return 0
}

func sortProfiles(profs []student.StudentProfile, orderings []core.DBOrdering) {
	if len(orderings) == 0 {
		sort.Slice(profs, func(i, j int) bool {
			if profs[i].RollNo != profs[j].RollNo {
				return profs[i].RollNo < profs[j].RollNo
			}
			return profs[i].FirstName < profs[j].FirstName
		})
		return
	}
	sort.SliceStable(profs, func(i, j int) bool {
		for _, ord := range orderings {
			cmp := compareProfiles(profs[i], profs[j], ord.Field)
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

func (repo *studentRepository) GetStudentProfileByID(_ context.Context, id string) (student.StudentProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sp, ok := repo.db.studentProfiles[id]; ok {
		return repo.annotate(*sp), nil
	}
	return student.StudentProfile{}, student.ErrNotFound
}

func (repo *studentRepository) GetStudentProfileByUserID(_ context.Context, userID string) (student.StudentProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sp := range repo.db.studentProfiles {
		if sp.UserID == userID {
			return repo.annotate(*sp), nil
		}
	}
	return student.StudentProfile{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudentProfile(_ context.Context, sp student.StudentProfile) (student.StudentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.studentProfiles[sp.ID]; !ok {
		return student.StudentProfile{}, student.ErrNotFound
	}
	if sp.RollNo != "" {
		for _, existing := range repo.db.studentProfiles {
			if existing.ID != sp.ID && existing.RollNo == sp.RollNo {
				return student.StudentProfile{}, student.ErrRollNoExists
			}
		}
	}
	repo.db.studentProfiles[sp.ID] = &sp
	return sp, nil
}

// attendance

func (repo *studentRepository) UpsertAttendance(_ context.Context, att student.Attendance) (student.Attendance, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.attendance {
		if existing.StudentID == att.StudentID && existing.Date.Equal(att.Date) {
			existing.Status = att.Status
			return *existing, false, nil
		}
	}
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	repo.db.attendance[att.ID] = &att
	return att, true, nil
}

func (repo *studentRepository) QueryAttendance(_ context.Context, af student.AttendanceFilter) ([]student.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	date := student.ParseDate(af.Date)
	records := make([]student.Attendance, 0)
	for _, att := range repo.db.attendance {
		sp, ok := repo.db.studentProfiles[att.StudentID]
		if !ok {
			continue
		}
		if af.StudentID != "" && att.StudentID != af.StudentID {
			continue
		}
		if af.BatchID != "" && sp.BatchID != af.BatchID {
			continue
		}
		if af.Year != 0 && att.Date.Year() != af.Year {
			continue
		}
		if af.Month != 0 && int(att.Date.Month()) != af.Month {
			continue
		}
		if af.Date != "" && !att.Date.Equal(date) {
			continue
		}
		rec := *att
		rec.StudentName = sp.FullName()
		rec.StudentRollNo = sp.RollNo
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].StudentRollNo < records[j].StudentRollNo
	})
	return records, nil
}
