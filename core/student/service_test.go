package student_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
	inmemdb "github.com/darasa-app/darasa/storage/database/inmem"
)

type testEnv struct {
	svc     *student.Service
	repo    student.Repository
	usrRepo user.Repository
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := inmemdb.Open()
	repo := inmemdb.NewStudentRepository(db)
	usrRepo := inmemdb.NewUserRepository(db)
	return &testEnv{
		svc:     student.NewService(db, repo, usrRepo),
		repo:    repo,
		usrRepo: usrRepo,
	}
}

func (env *testEnv) createBatch(t *testing.T, name string) student.Batch {
	t.Helper()
	b, err := env.svc.CreateBatch(context.Background(), student.NewBatch{Name: name, StartDate: "2026-01-05"})
	if err != nil {
		t.Fatalf("CreateBatch() failed, %v", err)
	}
	return b
}

func (env *testEnv) createStudent(t *testing.T, uname, batchID string) student.StudentProfile {
	t.Helper()
	prof, err := env.svc.Create(context.Background(), student.NewStudent{
		Username:  uname,
		Email:     uname + "@test.cd",
		Password:  "xK9#mQ2vTz",
		FirstName: "Awe",
		LastName:  "Lol",
		BatchID:   batchID,
	})
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	return prof
}

func TestService_batches(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	b := env.createBatch(t, "Batch A")
	if b.StartDate.IsZero() {
		t.Error("CreateBatch() did not parse the start date")
	}

	_, err := env.svc.CreateBatch(ctx, student.NewBatch{Name: "Batch A", StartDate: "2026-01-05"})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("CreateBatch() duplicate name error = %v, want a validation error", err)
	}

	b, err = env.svc.UpdateBatch(ctx, b.ID, student.UpdateBatch{Description: "Evening cohort"})
	if err != nil {
		t.Fatalf("UpdateBatch() failed, %v", err)
	}
	if b.Description != "Evening cohort" {
		t.Errorf("Description = %s, want Evening cohort", b.Description)
	}

	if err = env.svc.DeleteBatch(ctx, b.ID); err != nil {
		t.Fatalf("DeleteBatch() failed, %v", err)
	}
	if _, err = env.svc.GetBatch(ctx, b.ID); errors.Cause(err) != student.ErrBatchNotFound {
		t.Errorf("GetBatch() error = %v, want %v", err, student.ErrBatchNotFound)
	}
}

func TestService_Create(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	batch := env.createBatch(t, "Batch A")

	prof := env.createStudent(t, "awe", batch.ID)
	if prof.UserID == "" {
		t.Error("Create() did not link a user account")
	}
	if prof.JoiningDate.IsZero() {
		t.Error("Create() did not default the joining date")
	}

	usr, err := env.usrRepo.GetUserByUsername(ctx, "awe")
	if err != nil {
		t.Fatalf("GetUserByUsername() failed, %v", err)
	}
	if usr.Role != user.RoleStudent {
		t.Errorf("Role = %s, want %s", usr.Role, user.RoleStudent)
	}
	if err = usr.CheckPassword("xK9#mQ2vTz"); err != nil {
		t.Error("Create() did not hash the password")
	}

	tests := []struct {
		name  string
		data  student.NewStudent
		field string
	}{
		{
			name: "duplicate username",
			data: student.NewStudent{
				Username: "awe", Email: "other@test.cd", Password: "xK9#mQ2vTz",
				FirstName: "Other", LastName: "One",
			},
			field: "username",
		},
		{
			name: "duplicate email",
			data: student.NewStudent{
				Username: "other", Email: "awe@test.cd", Password: "xK9#mQ2vTz",
				FirstName: "Other", LastName: "One",
			},
			field: "email",
		},
		{
			name: "weak password",
			data: student.NewStudent{
				Username: "weak", Email: "weak@test.cd", Password: "password",
				FirstName: "Weak", LastName: "One",
			},
			field: "password",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, tt.data)
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Create() error = %v, want a validation error", err)
			}
			if len(vErr.Fields) == 0 || vErr.Fields[0].Field != tt.field {
				t.Errorf("Create() error fields = %+v, want %s", vErr.Fields, tt.field)
			}
		})
	}
}

func TestService_Signup(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	usr, err := env.svc.Signup(ctx, user.NewUser{
		FirstName: "Self",
		LastName:  "Served",
		Username:  "selfserved",
		Email:     "selfserved@test.cd",
		Password:  "xK9#mQ2vTz",
	})
	if err != nil {
		t.Fatalf("Signup() failed, %v", err)
	}
	if usr.Role != user.RoleStudent {
		t.Errorf("Role = %s, want %s", usr.Role, user.RoleStudent)
	}
	prof, err := env.repo.GetStudentProfileByUserID(ctx, usr.ID)
	if err != nil {
		t.Fatalf("Signup() did not create a student profile, %v", err)
	}
	if prof.JoiningDate.IsZero() {
		t.Error("Signup() did not default the joining date")
	}

	// a rejected signup must not leave a half-provisioned account behind
	_, err = env.svc.Signup(ctx, user.NewUser{
		FirstName: "Other",
		LastName:  "One",
		Username:  "selfserved",
		Email:     "other@test.cd",
		Password:  "xK9#mQ2vTz",
	})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("duplicate Signup() error = %v, want a validation error", err)
	}
	if _, err = env.usrRepo.GetUserByEmail(ctx, "other@test.cd"); errors.Cause(err) != user.ErrNotFound {
		t.Errorf("GetUserByEmail() error = %v, want %v", err, user.ErrNotFound)
	}
}

func TestService_Delete_cascades(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	batch := env.createBatch(t, "Batch A")
	prof := env.createStudent(t, "gone", batch.ID)

	if _, _, err := env.svc.MarkAttendance(ctx, student.NewAttendance{
		StudentID: prof.ID, Date: "2026-03-02", Status: student.StatusPresent,
	}); err != nil {
		t.Fatalf("MarkAttendance() failed, %v", err)
	}

	if err := env.svc.Delete(ctx, prof.ID); err != nil {
		t.Fatalf("Delete() failed, %v", err)
	}
	if _, err := env.svc.GetByID(ctx, prof.ID); errors.Cause(err) != student.ErrNotFound {
		t.Errorf("GetByID() error = %v, want %v", err, student.ErrNotFound)
	}
	if _, err := env.usrRepo.GetUserByID(ctx, prof.UserID); errors.Cause(err) != user.ErrNotFound {
		t.Errorf("GetUserByID() error = %v, want %v", err, user.ErrNotFound)
	}
	records, err := env.svc.QueryAttendance(ctx, student.AttendanceFilter{StudentID: prof.ID})
	if err != nil {
		t.Fatalf("QueryAttendance() failed, %v", err)
	}
	if len(records) != 0 {
		t.Errorf("QueryAttendance() returned %d orphaned records", len(records))
	}
}

func TestService_MarkAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	batch := env.createBatch(t, "Batch A")
	prof := env.createStudent(t, "awe", batch.ID)

	att, created, err := env.svc.MarkAttendance(ctx, student.NewAttendance{
		StudentID: prof.ID, Date: "2026-03-02", Status: student.StatusPresent,
	})
	if err != nil {
		t.Fatalf("MarkAttendance() failed, %v", err)
	}
	if !created {
		t.Error("first MarkAttendance() should create")
	}

	// same day again overwrites
	att2, created, err := env.svc.MarkAttendance(ctx, student.NewAttendance{
		StudentID: prof.ID, Date: "2026-03-02", Status: student.StatusAbsent,
	})
	if err != nil {
		t.Fatalf("second MarkAttendance() failed, %v", err)
	}
	if created {
		t.Error("second MarkAttendance() should update, not create")
	}
	if att2.ID != att.ID {
		t.Errorf("second mark produced a new record %s, want %s", att2.ID, att.ID)
	}
	if att2.Status != student.StatusAbsent {
		t.Errorf("Status = %s, want %s", att2.Status, student.StatusAbsent)
	}

	if _, _, err = env.svc.MarkAttendance(ctx, student.NewAttendance{
		StudentID: "nope", Date: "2026-03-02", Status: student.StatusPresent,
	}); errors.Cause(err) != student.ErrNotFound {
		t.Errorf("MarkAttendance() error = %v, want %v", err, student.ErrNotFound)
	}
}

func TestService_BulkMarkAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	batch := env.createBatch(t, "Batch A")

	profs := make([]student.StudentProfile, 3)
	for i := range profs {
		profs[i] = env.createStudent(t, fmt.Sprintf("bulk%d", i), batch.ID)
	}

	results, err := env.svc.BulkMarkAttendance(ctx, student.BulkAttendance{
		BatchID:           batch.ID,
		Date:              "2026-03-02",
		PresentStudentIDs: []string{profs[0].ID, profs[2].ID},
	})
	if err != nil {
		t.Fatalf("BulkMarkAttendance() failed, %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("BulkMarkAttendance() returned %d results, want 3", len(results))
	}

	byStudent := make(map[string]student.BulkAttendanceResult, len(results))
	for _, res := range results {
		byStudent[res.StudentID] = res
	}
	for _, want := range []struct {
		id     string
		status string
	}{
		{profs[0].ID, student.StatusPresent},
		{profs[1].ID, student.StatusAbsent},
		{profs[2].ID, student.StatusPresent},
	} {
		if got := byStudent[want.id]; got.Status != want.status {
			t.Errorf("student %s status = %s, want %s", want.id, got.Status, want.status)
		}
	}

	if _, err = env.svc.BulkMarkAttendance(ctx, student.BulkAttendance{
		BatchID: "nope", Date: "2026-03-02",
	}); errors.Cause(err) != student.ErrBatchNotFound {
		t.Errorf("BulkMarkAttendance() error = %v, want %v", err, student.ErrBatchNotFound)
	}
}

func TestService_attendanceAnalytics(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	batch := env.createBatch(t, "Batch A")
	prof := env.createStudent(t, "awe", batch.ID)

	mark := func(date, status string) {
		t.Helper()
		if _, _, err := env.svc.MarkAttendance(ctx, student.NewAttendance{
			StudentID: prof.ID, Date: date, Status: status,
		}); err != nil {
			t.Fatalf("MarkAttendance() failed, %v", err)
		}
	}
	// March: 2/3 present; April: 0/1
	mark("2026-03-02", student.StatusPresent)
	mark("2026-03-03", student.StatusPresent)
	mark("2026-03-04", student.StatusAbsent)
	mark("2026-04-01", student.StatusAbsent)

	pct, err := env.svc.AttendancePercentage(ctx, prof.ID)
	if err != nil {
		t.Fatalf("AttendancePercentage() failed, %v", err)
	}
	if pct != 50 {
		t.Errorf("AttendancePercentage() = %v, want 50", pct)
	}

	trend, err := env.svc.AttendanceTrend(ctx, prof.ID)
	if err != nil {
		t.Fatalf("AttendanceTrend() failed, %v", err)
	}
	want := []student.TrendPoint{
		{Year: 2026, Month: 3, AttendancePercentage: 66.67},
		{Year: 2026, Month: 4, AttendancePercentage: 0},
	}
	if len(trend) != len(want) {
		t.Fatalf("AttendanceTrend() returned %d points, want %d", len(trend), len(want))
	}
	for i, p := range want {
		if trend[i] != p {
			t.Errorf("trend[%d] = %+v, want %+v", i, trend[i], p)
		}
	}

	report, err := env.svc.MonthlyReport(ctx, batch.ID, 2026, 3)
	if err != nil {
		t.Fatalf("MonthlyReport() failed, %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("MonthlyReport() returned %d entries, want 1", len(report))
	}
	entry := report[0]
	if entry.TotalDays != 3 || entry.PresentDays != 2 || entry.AbsentDays != 1 {
		t.Errorf("MonthlyReport() entry = %+v, want 3 days, 2 present, 1 absent", entry)
	}
	if entry.AttendancePercentage != 66.67 {
		t.Errorf("AttendancePercentage = %v, want 66.67", entry.AttendancePercentage)
	}

	batchPct, err := env.svc.BatchAttendancePercentage(ctx, batch.ID)
	if err != nil {
		t.Fatalf("BatchAttendancePercentage() failed, %v", err)
	}
	if batchPct != 50 {
		t.Errorf("BatchAttendancePercentage() = %v, want 50", batchPct)
	}
}
