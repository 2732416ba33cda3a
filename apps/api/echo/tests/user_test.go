package tests

import (
	"context"
	"net/http"
	"testing"

	echoapi "github.com/darasa-app/darasa/apps/api/echo"
	"github.com/darasa-app/darasa/core/user"
)

func Test_userApi_login(t *testing.T) {
	createUser(t, "loginusr", user.RoleStudent, true)
	createUser(t, "sleeper", user.RoleTeacher, false)

	tests := []struct {
		name     string
		body     echoapi.LoginRequest
		wantCode int
	}{
		{name: "ok", body: echoapi.LoginRequest{Username: "loginusr", Password: testPassword}, wantCode: http.StatusOK},
		{name: "by email", body: echoapi.LoginRequest{Username: "loginusr@test.cd", Password: testPassword}, wantCode: http.StatusOK},
		{name: "wrong password", body: echoapi.LoginRequest{Username: "loginusr", Password: "nope"}, wantCode: http.StatusBadRequest},
		{name: "unknown user", body: echoapi.LoginRequest{Username: "ghost", Password: testPassword}, wantCode: http.StatusBadRequest},
		{name: "deactivated", body: echoapi.LoginRequest{Username: "sleeper", Password: testPassword}, wantCode: http.StatusForbidden},
		{name: "missing fields", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newRequest(http.MethodPost, "/v1/users/login", tt.body))
			checkCode(t, rec, tt.wantCode)
			if tt.wantCode == http.StatusOK {
				var res echoapi.LoginResponse
				decode(t, rec, &res)
				if res.Token == "" {
					t.Error("login returned no token")
				}
			}
		})
	}
}

func Test_userApi_signup(t *testing.T) {
	body := map[string]string{
		"first_name":       "Self",
		"last_name":        "Served",
		"username":         "selfserved",
		"email":            "selfserved@test.cd",
		"password":         testPassword,
		"password_confirm": testPassword,
		// role must be ignored
		"role": user.RoleAdmin,
	}
	rec := do(newRequest(http.MethodPost, "/v1/users/signup", body))
	checkCode(t, rec, http.StatusCreated)

	var usr user.User
	decode(t, rec, &usr)
	if usr.Role != user.RoleStudent {
		t.Errorf("Role = %s, want forced %s", usr.Role, user.RoleStudent)
	}
	if _, err := studentRepo.GetStudentProfileByUserID(context.Background(), usr.ID); err != nil {
		t.Errorf("signup did not create a student profile, %v", err)
	}

	// duplicate username
	rec = do(newRequest(http.MethodPost, "/v1/users/signup", body))
	checkCode(t, rec, http.StatusBadRequest)
}

func Test_userApi_me(t *testing.T) {
	usr := createUser(t, "myself", user.RoleStudent, true)
	token := getToken(t, usr)

	rec := do(newRequest(http.MethodGet, "/v1/users/me"))
	checkCode(t, rec, http.StatusUnauthorized)

	rec = do(newAuthRequest(http.MethodGet, "/v1/users/me", token))
	checkCode(t, rec, http.StatusOK)
	var got user.User
	decode(t, rec, &got)
	if got.ID != usr.ID {
		t.Errorf("ID = %s, want %s", got.ID, usr.ID)
	}

	rec = do(newAuthRequest(http.MethodPut, "/v1/users/me", token, map[string]string{
		"first_name": "Renamed",
		"phone":      "+243111222333",
	}))
	checkCode(t, rec, http.StatusOK)
	decode(t, rec, &got)
	if got.FirstName != "Renamed" {
		t.Errorf("FirstName = %s, want Renamed", got.FirstName)
	}
	if got.Phone != "+243111222333" {
		t.Errorf("Phone = %s, want +243111222333", got.Phone)
	}

	// the phone sticks across reads
	rec = do(newAuthRequest(http.MethodGet, "/v1/users/me", token))
	checkCode(t, rec, http.StatusOK)
	decode(t, rec, &got)
	if got.Phone != "+243111222333" {
		t.Errorf("Phone = %s after re-read, want +243111222333", got.Phone)
	}
}

func Test_userApi_queryRoles(t *testing.T) {
	admin := createUser(t, "rolesadmin", user.RoleAdmin, true)
	studentUsr := createUser(t, "rolespleb", user.RoleStudent, true)

	rec := do(newAuthRequest(http.MethodGet, "/v1/users/roles", getToken(t, studentUsr)))
	checkCode(t, rec, http.StatusForbidden)

	rec = do(newAuthRequest(http.MethodGet, "/v1/users/roles", getToken(t, admin)))
	checkCode(t, rec, http.StatusOK)
	var roles []user.Role
	decode(t, rec, &roles)
	if len(roles) != len(user.Roles) {
		t.Errorf("got %d roles, want %d", len(roles), len(user.Roles))
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	usr := createUser(t, "refresher", user.RoleTeacher, true)

	rec := do(newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, usr)))
	checkCode(t, rec, http.StatusOK)
	var res echoapi.LoginResponse
	decode(t, rec, &res)
	if res.Token == "" {
		t.Error("refresh returned no token")
	}
}

func Test_userApi_current(t *testing.T) {
	batch := createBatch(t, "Current Batch")
	usr, prof := createStudent(t, "currstud", batch.ID)

	rec := do(newAuthRequest(http.MethodGet, "/v1/users/current", getToken(t, usr)))
	checkCode(t, rec, http.StatusOK)

	var res echoapi.CurrentUserResponse
	decode(t, rec, &res)
	if res.User.ID != usr.ID {
		t.Errorf("User.ID = %s, want %s", res.User.ID, usr.ID)
	}
	if res.StudentProfile == nil || res.StudentProfile.ID != prof.ID {
		t.Errorf("StudentProfile = %+v, want %s", res.StudentProfile, prof.ID)
	}
}
