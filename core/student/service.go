package student

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("student not found")
	ErrBatchNotFound      = errors.New("batch not found")
	ErrBatchNameExists    = errors.New("a batch with this name already exists")
	ErrRollNoExists       = errors.New("a student with this roll number already exists")
	ErrAttendanceNotFound = errors.New("attendance record not found")
)

type (
	Repository interface {
		CreateBatch(ctx context.Context, b Batch) (Batch, error)
		QueryAllBatches(ctx context.Context) ([]Batch, error)
		GetBatchByID(ctx context.Context, id string) (Batch, error)
		UpdateBatch(ctx context.Context, b Batch) (Batch, error)
		DeleteBatch(ctx context.Context, id string) error

		CreateStudentProfile(ctx context.Context, sp StudentProfile, exec ...core.DBExecutor) (StudentProfile, error)
		QueryStudentProfiles(ctx context.Context, qf QueryFilter) ([]StudentProfile, error)
		GetStudentProfileByID(ctx context.Context, id string) (StudentProfile, error)
		GetStudentProfileByUserID(ctx context.Context, userID string) (StudentProfile, error)
		UpdateStudentProfile(ctx context.Context, sp StudentProfile) (StudentProfile, error)

		UpsertAttendance(ctx context.Context, att Attendance) (Attendance, bool, error)
		QueryAttendance(ctx context.Context, af AttendanceFilter) ([]Attendance, error)
	}

	Service struct {
		db      core.Transactor
		repo    Repository
		usrRepo user.Repository
	}
)

func NewService(db core.Transactor, repo Repository, usrRepo user.Repository) *Service {
	return &Service{db: db, repo: repo, usrRepo: usrRepo}
}

func (svc *Service) Repo() Repository { return svc.repo }

// Batches

func (svc *Service) CreateBatch(ctx context.Context, nb NewBatch) (Batch, error) {
	b := Batch{
		Name:        nb.Name,
		Description: nb.Description,
		StartDate:   ParseDate(nb.StartDate),
		EndDate:     ParseDate(nb.EndDate),
	}
	b, err := svc.repo.CreateBatch(ctx, b)
	if errors.Cause(err) == ErrBatchNameExists {
		return Batch{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrBatchNameExists.Error()})
	}
	return b, err
}

func (svc *Service) QueryBatches(ctx context.Context) ([]Batch, error) {
	return svc.repo.QueryAllBatches(ctx)
}

func (svc *Service) GetBatch(ctx context.Context, id string) (Batch, error) {
	return svc.repo.GetBatchByID(ctx, id)
}

func (svc *Service) UpdateBatch(ctx context.Context, id string, ub UpdateBatch) (Batch, error) {
	b, err := svc.repo.GetBatchByID(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if ub.Name != "" {
		b.Name = ub.Name
	}
	if ub.Description != "" {
		b.Description = ub.Description
	}
	if ub.StartDate != "" {
		b.StartDate = ParseDate(ub.StartDate)
	}
	if ub.EndDate != "" {
		b.EndDate = ParseDate(ub.EndDate)
	}
	b, err = svc.repo.UpdateBatch(ctx, b)
	if errors.Cause(err) == ErrBatchNameExists {
		return Batch{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrBatchNameExists.Error()})
	}
	return b, err
}

func (svc *Service) DeleteBatch(ctx context.Context, id string) error {
	return svc.repo.DeleteBatch(ctx, id)
}

// Students

// Create provisions a student account together with its profile.
// Both records are created in a single transaction.
func (svc *Service) Create(ctx context.Context, ns NewStudent) (StudentProfile, error) {
	if err := user.ValidatePassword(ns.Password, ns.Username, ns.Email, ns.FirstName, ns.LastName); err != nil {
		return StudentProfile{}, err
	}
	if ns.BatchID != "" {
		if _, err := svc.repo.GetBatchByID(ctx, ns.BatchID); err != nil {
			return StudentProfile{}, err
		}
	}
	if err := svc.usrRepo.CheckUsernameUniqueness(ctx, ns.Username, ns.Email, nil); err != nil {
		return StudentProfile{}, uniquenessError(err)
	}

	now := time.Now().UTC()
	usr := user.User{
		FirstName: ns.FirstName,
		LastName:  ns.LastName,
		Username:  ns.Username,
		Email:     ns.Email,
		Role:      user.RoleStudent,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(ns.Password); err != nil {
		return StudentProfile{}, err
	}

	var prof StudentProfile
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		usr, err := svc.usrRepo.CreateUser(ctx, usr, exec)
		if err != nil {
			return uniquenessError(err)
		}

		prof = StudentProfile{
			UserID:    usr.ID,
			FirstName: ns.FirstName,
			LastName:  ns.LastName,
			BatchID:   ns.BatchID,
		}
		ns.ProfileFields.Apply(&prof)
		if prof.JoiningDate.IsZero() {
			prof.JoiningDate = now.Truncate(24 * time.Hour)
		}
		prof, err = svc.repo.CreateStudentProfile(ctx, prof, exec)
		if errors.Cause(err) == ErrRollNoExists {
			return core.NewValidationError(err, core.FieldError{Field: "roll_no", Error: ErrRollNoExists.Error()})
		}
		return err
	})
	if err != nil {
		return StudentProfile{}, err
	}
	prof.Username = ns.Username
	return prof, nil
}

// Signup provisions a self-registered student account with a blank
// profile, both records in one transaction. The caller validates nu and
// forces the student role beforehand.
func (svc *Service) Signup(ctx context.Context, nu user.NewUser) (user.User, error) {
	now := time.Now().UTC()
	usr := user.User{
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      user.RoleStudent,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return user.User{}, err
	}

	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if usr, err = svc.usrRepo.CreateUser(ctx, usr, exec); err != nil {
			return uniquenessError(err)
		}
		_, err = svc.repo.CreateStudentProfile(ctx, StudentProfile{
			UserID:      usr.ID,
			FirstName:   usr.FirstName,
			LastName:    usr.LastName,
			JoiningDate: now.Truncate(24 * time.Hour),
		}, exec)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, qf QueryFilter) ([]StudentProfile, error) {
	qf.Clean()
	return svc.repo.QueryStudentProfiles(ctx, qf)
}

func (svc *Service) GetByID(ctx context.Context, id string) (StudentProfile, error) {
	return svc.repo.GetStudentProfileByID(ctx, id)
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (StudentProfile, error) {
	return svc.repo.GetStudentProfileByUserID(ctx, userID)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (StudentProfile, error) {
	prof, err := svc.repo.GetStudentProfileByID(ctx, id)
	if err != nil {
		return StudentProfile{}, err
	}
	if us.BatchID != "" {
		if _, err = svc.repo.GetBatchByID(ctx, us.BatchID); err != nil {
			return StudentProfile{}, err
		}
		prof.BatchID = us.BatchID
	}
	if us.FirstName != "" {
		prof.FirstName = us.FirstName
	}
	if us.LastName != "" {
		prof.LastName = us.LastName
	}
	applyProfileUpdates(&prof, us.ProfileFields)

	prof, err = svc.repo.UpdateStudentProfile(ctx, prof)
	if errors.Cause(err) == ErrRollNoExists {
		return StudentProfile{}, core.NewValidationError(err, core.FieldError{Field: "roll_no", Error: ErrRollNoExists.Error()})
	}
	return prof, err
}

// Delete removes the student's account; the profile, attendance records
// and submissions go with it (ON DELETE CASCADE).
func (svc *Service) Delete(ctx context.Context, id string) error {
	prof, err := svc.repo.GetStudentProfileByID(ctx, id)
	if err != nil {
		return err
	}
	return svc.usrRepo.DeleteUser(ctx, prof.UserID)
}

// Attendance

// MarkAttendance records a student's status for a day. A second mark for
// the same (student, date) overwrites the first; created reports which.
func (svc *Service) MarkAttendance(ctx context.Context, na NewAttendance) (Attendance, bool, error) {
	prof, err := svc.repo.GetStudentProfileByID(ctx, na.StudentID)
	if err != nil {
		return Attendance{}, false, err
	}
	att := Attendance{
		StudentID: prof.ID,
		Date:      ParseDate(na.Date),
		Status:    na.Status,
	}
	return svc.repo.UpsertAttendance(ctx, att)
}

// BulkMarkAttendance marks every student of a batch for one day: those in
// PresentStudentIDs as present, the rest as absent.
func (svc *Service) BulkMarkAttendance(ctx context.Context, ba BulkAttendance) ([]BulkAttendanceResult, error) {
	if _, err := svc.repo.GetBatchByID(ctx, ba.BatchID); err != nil {
		return nil, err
	}
	profs, err := svc.repo.QueryStudentProfiles(ctx, QueryFilter{BatchID: ba.BatchID})
	if err != nil {
		return nil, err
	}

	date := ParseDate(ba.Date)
	present := lo.SliceToMap(ba.PresentStudentIDs, func(id string) (string, struct{}) { return id, struct{}{} })

	results := make([]BulkAttendanceResult, 0, len(profs))
	for _, prof := range profs {
		status := StatusAbsent
		if _, ok := present[prof.ID]; ok {
			status = StatusPresent
		}
		_, created, err := svc.repo.UpsertAttendance(ctx, Attendance{StudentID: prof.ID, Date: date, Status: status})
		if err != nil {
			return nil, errors.Wrapf(err, "marking attendance for student %s", prof.ID)
		}
		results = append(results, BulkAttendanceResult{
			StudentID: prof.ID,
			RollNo:    prof.RollNo,
			Status:    status,
			Created:   created,
		})
	}
	return results, nil
}

func (svc *Service) QueryAttendance(ctx context.Context, af AttendanceFilter) ([]Attendance, error) {
	return svc.repo.QueryAttendance(ctx, af)
}

// Analytics

// AttendancePercentage is the share of recorded days the student was present.
// A student with no records has 0%.
func (svc *Service) AttendancePercentage(ctx context.Context, studentID string) (float64, error) {
	records, err := svc.repo.QueryAttendance(ctx, AttendanceFilter{StudentID: studentID})
	if err != nil {
		return 0, err
	}
	return percentPresent(records), nil
}

// AttendanceTrend returns the student's month-by-month attendance
// percentage, oldest month first.
func (svc *Service) AttendanceTrend(ctx context.Context, studentID string) ([]TrendPoint, error) {
	records, err := svc.repo.QueryAttendance(ctx, AttendanceFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}

	type yearMonth struct{ year, month int }
	byMonth := lo.GroupBy(records, func(att Attendance) yearMonth {
		return yearMonth{att.Date.Year(), int(att.Date.Month())}
	})

	trend := make([]TrendPoint, 0, len(byMonth))
	for ym, recs := range byMonth {
		trend = append(trend, TrendPoint{
			Year:                 ym.year,
			Month:                ym.month,
			AttendancePercentage: percentPresent(recs),
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

// MonthlyReport summarizes one month of attendance for every student of a
// batch, including students with no records that month.
func (svc *Service) MonthlyReport(ctx context.Context, batchID string, year, month int) ([]MonthlyReportEntry, error) {
	if _, err := svc.repo.GetBatchByID(ctx, batchID); err != nil {
		return nil, err
	}
	profs, err := svc.repo.QueryStudentProfiles(ctx, QueryFilter{BatchID: batchID})
	if err != nil {
		return nil, err
	}
	records, err := svc.repo.QueryAttendance(ctx, AttendanceFilter{BatchID: batchID, Year: year, Month: month})
	if err != nil {
		return nil, err
	}

	byStudent := lo.GroupBy(records, func(att Attendance) string { return att.StudentID })

	report := make([]MonthlyReportEntry, 0, len(profs))
	for _, prof := range profs {
		recs := byStudent[prof.ID]
		presentDays := lo.CountBy(recs, func(att Attendance) bool { return att.Status == StatusPresent })
		report = append(report, MonthlyReportEntry{
			StudentID:            prof.ID,
			StudentName:          prof.FullName(),
			RollNo:               prof.RollNo,
			Year:                 year,
			Month:                month,
			TotalDays:            len(recs),
			PresentDays:          presentDays,
			AbsentDays:           len(recs) - presentDays,
			AttendancePercentage: percentPresent(recs),
		})
	}
	return report, nil
}

// BatchAttendancePercentage is the overall share of present marks across
// all attendance records of a batch.
func (svc *Service) BatchAttendancePercentage(ctx context.Context, batchID string) (float64, error) {
	records, err := svc.repo.QueryAttendance(ctx, AttendanceFilter{BatchID: batchID})
	if err != nil {
		return 0, err
	}
	return percentPresent(records), nil
}

func applyProfileUpdates(prof *StudentProfile, pf ProfileFields) {
	if pf.RollNo != "" {
		prof.RollNo = core.CleanString(pf.RollNo)
	}
	if pf.FatherName != "" {
		prof.FatherName = core.CleanString(pf.FatherName)
	}
	if pf.MotherName != "" {
		prof.MotherName = core.CleanString(pf.MotherName)
	}
	if pf.DateOfBirth != "" {
		prof.DateOfBirth = ParseDate(pf.DateOfBirth)
	}
	if pf.Gender != "" {
		prof.Gender = core.CleanString(pf.Gender, true /* lower */)
	}
	if pf.Phone != "" {
		prof.Phone = core.CleanString(pf.Phone)
	}
	if pf.EmergencyPhone != "" {
		prof.EmergencyPhone = core.CleanString(pf.EmergencyPhone)
	}
	if pf.Address != "" {
		prof.Address = core.CleanString(pf.Address)
	}
	if pf.City != "" {
		prof.City = core.CleanString(pf.City)
	}
	if pf.State != "" {
		prof.State = core.CleanString(pf.State)
	}
	if pf.Pincode != "" {
		prof.Pincode = core.CleanString(pf.Pincode)
	}
	if pf.Course != "" {
		prof.Course = core.CleanString(pf.Course)
	}
	if pf.JoiningDate != "" {
		prof.JoiningDate = ParseDate(pf.JoiningDate)
	}
}

func percentPresent(records []Attendance) float64 {
	if len(records) == 0 {
		return 0
	}
	present := lo.CountBy(records, func(att Attendance) bool { return att.Status == StatusPresent })
	return round2(float64(present) / float64(len(records)) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func uniquenessError(err error) error {
	switch errors.Cause(err) {
	case user.ErrUsernameExists:
		return core.NewValidationError(err, core.FieldError{Field: "username", Error: user.ErrUsernameExists.Error()})
	case user.ErrEmailExists:
		return core.NewValidationError(err, core.FieldError{Field: "email", Error: user.ErrEmailExists.Error()})
	}
	return err
}
