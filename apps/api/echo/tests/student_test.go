package tests

import (
	"net/http"
	"testing"

	echoapi "github.com/darasa-app/darasa/apps/api/echo"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
)

func Test_studentApi_batches(t *testing.T) {
	admin := createUser(t, "batchadmin", user.RoleAdmin, true)
	teacher := createUser(t, "batchteacher", user.RoleTeacher, true)
	studentUsr := createUser(t, "batchpleb", user.RoleStudent, true)
	adminToken := getToken(t, admin)

	// students may not create batches
	rec := do(newAuthRequest(http.MethodPost, "/v1/batches", getToken(t, studentUsr), student.NewBatch{
		Name: "Student Made", StartDate: "2026-02-02",
	}))
	checkCode(t, rec, http.StatusForbidden)

	rec = do(newAuthRequest(http.MethodPost, "/v1/batches", getToken(t, teacher), student.NewBatch{
		Name: "Morning Cohort", StartDate: "2026-02-02",
	}))
	checkCode(t, rec, http.StatusCreated)
	var b student.Batch
	decode(t, rec, &b)

	// missing start date
	rec = do(newAuthRequest(http.MethodPost, "/v1/batches", adminToken, student.NewBatch{Name: "No Dates"}))
	checkCode(t, rec, http.StatusBadRequest)

	// a student only sees the batch they belong to
	otherBatch := createBatch(t, "Evening Cohort")
	insider, _ := createStudent(t, "batchinsider", b.ID)
	insiderToken := getToken(t, insider)

	rec = do(newAuthRequest(http.MethodGet, "/v1/batches", insiderToken))
	checkCode(t, rec, http.StatusOK)
	var visible []student.Batch
	decode(t, rec, &visible)
	if len(visible) != 1 || visible[0].ID != b.ID {
		t.Errorf("student sees batches %+v, want only their own %s", visible, b.ID)
	}
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+b.ID, insiderToken))
	checkCode(t, rec, http.StatusOK)

	// other batches do not exist for them
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+otherBatch.ID, insiderToken))
	checkCode(t, rec, http.StatusNotFound)

	// a student account without an enrollment sees nothing
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches", getToken(t, studentUsr)))
	checkCode(t, rec, http.StatusOK)
	var none []student.Batch
	decode(t, rec, &none)
	if len(none) != 0 {
		t.Errorf("unenrolled student sees batches %+v, want none", none)
	}
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+b.ID, getToken(t, studentUsr)))
	checkCode(t, rec, http.StatusNotFound)

	// staff list everything
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches", getToken(t, teacher)))
	checkCode(t, rec, http.StatusOK)

	rec = do(newAuthRequest(http.MethodPut, "/v1/batches/"+b.ID, adminToken, student.UpdateBatch{Description: "early risers"}))
	checkCode(t, rec, http.StatusOK)

	// delete is admin only
	rec = do(newAuthRequest(http.MethodDelete, "/v1/batches/"+b.ID, getToken(t, teacher)))
	checkCode(t, rec, http.StatusForbidden)
	rec = do(newAuthRequest(http.MethodDelete, "/v1/batches/"+b.ID, adminToken))
	checkCode(t, rec, http.StatusNoContent)
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+b.ID, adminToken))
	checkCode(t, rec, http.StatusNotFound)
}

func Test_studentApi_students(t *testing.T) {
	admin := createUser(t, "studadmin", user.RoleAdmin, true)
	adminToken := getToken(t, admin)
	batch := createBatch(t, "Roster Batch")

	body := student.NewStudent{
		Username:  "rostered",
		Email:     "rostered@test.cd",
		Password:  testPassword,
		FirstName: "Ros",
		LastName:  "Tered",
		BatchID:   batch.ID,
	}
	body.RollNo = "R-001"

	rec := do(newAuthRequest(http.MethodPost, "/v1/students", adminToken, body))
	checkCode(t, rec, http.StatusCreated)
	var prof student.StudentProfile
	decode(t, rec, &prof)
	if prof.RollNo != "R-001" {
		t.Errorf("RollNo = %s, want R-001", prof.RollNo)
	}

	// listing is staff only, paginated
	rec = do(newAuthRequest(http.MethodGet, "/v1/students?batch_id="+batch.ID, adminToken))
	checkCode(t, rec, http.StatusOK)
	var page echoapi.PaginatedResponse
	decode(t, rec, &page)
	if page.Count != 1 {
		t.Errorf("Count = %d, want 1", page.Count)
	}

	body2 := body
	body2.Username = "rostered2"
	body2.Email = "rostered2@test.cd"
	body2.RollNo = "R-002"
	rec = do(newAuthRequest(http.MethodPost, "/v1/students", adminToken, body2))
	checkCode(t, rec, http.StatusCreated)

	rec = do(newAuthRequest(http.MethodGet, "/v1/students?batch_id="+batch.ID+"&ordering=-roll_no", adminToken))
	checkCode(t, rec, http.StatusOK)
	var ordered struct {
		Results []student.StudentProfile `json:"results"`
	}
	decode(t, rec, &ordered)
	if len(ordered.Results) != 2 || ordered.Results[0].RollNo != "R-002" {
		t.Errorf("ordering=-roll_no returned %+v, want R-002 first", ordered.Results)
	}

	// a student sees their own profile but nobody else's
	otherUsr, otherProf := createStudent(t, "nosy", batch.ID)
	otherToken := getToken(t, otherUsr)

	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+otherProf.ID, otherToken))
	checkCode(t, rec, http.StatusOK)
	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+prof.ID, otherToken))
	checkCode(t, rec, http.StatusNotFound)
	rec = do(newAuthRequest(http.MethodGet, "/v1/students", otherToken))
	checkCode(t, rec, http.StatusForbidden)

	// staff update
	upd := student.UpdateStudent{FirstName: "Renamed"}
	rec = do(newAuthRequest(http.MethodPut, "/v1/students/"+prof.ID, adminToken, upd))
	checkCode(t, rec, http.StatusOK)
	decode(t, rec, &prof)
	if prof.FirstName != "Renamed" {
		t.Errorf("FirstName = %s, want Renamed", prof.FirstName)
	}

	rec = do(newAuthRequest(http.MethodDelete, "/v1/students/"+prof.ID, adminToken))
	checkCode(t, rec, http.StatusNoContent)
	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+prof.ID, adminToken))
	checkCode(t, rec, http.StatusNotFound)
}

func Test_studentApi_attendance(t *testing.T) {
	teacher := createUser(t, "attteacher", user.RoleTeacher, true)
	teacherToken := getToken(t, teacher)
	batch := createBatch(t, "Attendance Batch")
	_, prof1 := createStudent(t, "attstud1", batch.ID)
	stud2, prof2 := createStudent(t, "attstud2", batch.ID)

	// first mark creates
	rec := do(newAuthRequest(http.MethodPost, "/v1/attendance", teacherToken, student.NewAttendance{
		StudentID: prof1.ID, Date: "2026-03-02", Status: student.StatusPresent,
	}))
	checkCode(t, rec, http.StatusCreated)

	// same day again updates
	rec = do(newAuthRequest(http.MethodPost, "/v1/attendance", teacherToken, student.NewAttendance{
		StudentID: prof1.ID, Date: "2026-03-02", Status: student.StatusAbsent,
	}))
	checkCode(t, rec, http.StatusOK)

	rec = do(newAuthRequest(http.MethodPost, "/v1/attendance", teacherToken, student.NewAttendance{
		StudentID: prof1.ID, Date: "2026-03-02", Status: "late",
	}))
	checkCode(t, rec, http.StatusBadRequest)

	// bulk: prof2 present, prof1 absent
	rec = do(newAuthRequest(http.MethodPost, "/v1/attendance/bulk", teacherToken, student.BulkAttendance{
		BatchID:           batch.ID,
		Date:              "2026-03-03",
		PresentStudentIDs: []string{prof2.ID},
	}))
	checkCode(t, rec, http.StatusOK)
	var results []student.BulkAttendanceResult
	decode(t, rec, &results)
	if len(results) != 2 {
		t.Fatalf("bulk marked %d students, want 2", len(results))
	}

	// a student reads their own records
	stud2Token := getToken(t, stud2)
	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+prof2.ID+"/attendance", stud2Token))
	checkCode(t, rec, http.StatusOK)
	var records []student.Attendance
	decode(t, rec, &records)
	if len(records) != 1 || records[0].Status != student.StatusPresent {
		t.Errorf("records = %+v, want one present mark", records)
	}

	// but not someone else's
	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+prof1.ID+"/attendance", stud2Token))
	checkCode(t, rec, http.StatusNotFound)

	// monthly report is staff only
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+batch.ID+"/attendance-report?year=2026&month=3", teacherToken))
	checkCode(t, rec, http.StatusOK)
	var report []student.MonthlyReportEntry
	decode(t, rec, &report)
	if len(report) != 2 {
		t.Errorf("report has %d entries, want 2", len(report))
	}

	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+batch.ID+"/attendance-report", teacherToken))
	checkCode(t, rec, http.StatusBadRequest)
}
