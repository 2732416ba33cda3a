package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	echoapi "github.com/darasa-app/darasa/apps/api/echo"
	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/assessment"
	"github.com/darasa-app/darasa/core/invite"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
	emailsvc "github.com/darasa-app/darasa/services/email"
	logsvc "github.com/darasa-app/darasa/services/logger"
	inmemdb "github.com/darasa-app/darasa/storage/database/inmem"
)

var (
	db  *inmemdb.DB
	app echoapi.Server

	usrRepo     user.Repository
	studentRepo student.Repository
	inviteRepo  invite.Repository

	studentSvc    *student.Service
	assessmentSvc *assessment.Service
)

func TestMain(m *testing.M) {
	// keep error payloads in their production shape
	core.Conf.Debug = false

	db = inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	studentRepo = inmemdb.NewStudentRepository(db)
	inviteRepo = inmemdb.NewInvitationRepository(db)
	assessmentRepo := inmemdb.NewAssessmentRepository(db)

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.Conf)
	logger.Enable(false)
	mailSvc := emailsvc.NewConsoleServiceMock()

	studentSvc = student.NewService(db, studentRepo, usrRepo)
	assessmentSvc = assessment.NewService(db, assessmentRepo, studentRepo)

	app = echoapi.NewServer(&echoapi.Options{
		DisableReqLogs: true,
		Logger:         logger,
		UserSvc:        user.NewService(usrRepo),
		StudentSvc:     studentSvc,
		AssessmentSvc:  assessmentSvc,
		InviteSvc:      invite.NewService(db, inviteRepo, usrRepo, studentRepo, mailSvc, logger),
		Shutdown:       func() {},
	})

	os.Exit(m.Run())
}

type httpErr struct {
	Error string `json:"error"`
}

func newAuthRequest(method, path, token string, data ...interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		_ = json.NewEncoder(&body).Encode(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...interface{}) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr))
	if err != nil {
		t.Fatalf("GenerateToken() failed, %v", err)
	}
	return token
}

const testPassword = "xK9#mQ2vTz"

func createUser(t *testing.T, uname, role string, active bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		FirstName: "Test",
		LastName:  "User",
		Username:  uname,
		Email:     uname + "@test.cd",
		Role:      role,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(testPassword); err != nil {
		t.Fatalf("SetPassword() failed, %v", err)
	}
	usr, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed, %v", err)
	}
	return usr
}

func createBatch(t *testing.T, name string) student.Batch {
	t.Helper()
	b, err := studentRepo.CreateBatch(context.Background(), student.Batch{Name: name})
	if err != nil {
		t.Fatalf("CreateBatch() failed, %v", err)
	}
	return b
}

func createStudent(t *testing.T, uname, batchID string) (user.User, student.StudentProfile) {
	t.Helper()
	usr := createUser(t, uname, user.RoleStudent, true)
	prof, err := studentRepo.CreateStudentProfile(context.Background(), student.StudentProfile{
		UserID:    usr.ID,
		FirstName: usr.FirstName,
		LastName:  usr.LastName,
		BatchID:   batchID,
	})
	if err != nil {
		t.Fatalf("CreateStudentProfile() failed, %v", err)
	}
	return usr, prof
}

func checkCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("code = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}
