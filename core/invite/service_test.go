package invite_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/invite"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
	emailsvc "github.com/darasa-app/darasa/services/email"
	logsvc "github.com/darasa-app/darasa/services/logger"
	inmemdb "github.com/darasa-app/darasa/storage/database/inmem"
)

type testEnv struct {
	svc         *invite.Service
	repo        invite.Repository
	usrRepo     user.Repository
	studentRepo student.Repository
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	studentRepo := inmemdb.NewStudentRepository(db)
	repo := inmemdb.NewInvitationRepository(db)

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.Conf)
	logger.Enable(false)

	return &testEnv{
		svc:         invite.NewService(db, repo, usrRepo, studentRepo, emailsvc.NewConsoleServiceMock(), logger),
		repo:        repo,
		usrRepo:     usrRepo,
		studentRepo: studentRepo,
	}
}

func (env *testEnv) createUser(t *testing.T, uname, role string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Username:  uname,
		Email:     uname + "@test.cd",
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr, err := env.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed, %v", err)
	}
	return usr
}

func (env *testEnv) createBatch(t *testing.T, name string) student.Batch {
	t.Helper()
	b, err := env.studentRepo.CreateBatch(context.Background(), student.Batch{Name: name})
	if err != nil {
		t.Fatalf("CreateBatch() failed, %v", err)
	}
	return b
}

func (env *testEnv) createInvitation(t *testing.T, inv invite.Invitation) invite.Invitation {
	t.Helper()
	if inv.Token == "" {
		inv.Token = "tok-" + inv.Email
	}
	inv.CreatedAt = time.Now().UTC()
	inv, err := env.repo.CreateInvitation(context.Background(), inv)
	if err != nil {
		t.Fatalf("CreateInvitation() failed, %v", err)
	}
	return inv
}

func acceptPayload(token, uname string) invite.AcceptInvitation {
	return invite.AcceptInvitation{
		Token:           token,
		Username:        uname,
		Password:        "xK9#mQ2vTz",
		PasswordConfirm: "xK9#mQ2vTz",
		FirstName:       "Awe",
		LastName:        "Lol",
	}
}

func TestService_Create(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	admin := env.createUser(t, "admin", user.RoleAdmin)
	teacher := env.createUser(t, "teacher", user.RoleTeacher)
	studentUsr := env.createUser(t, "student", user.RoleStudent)
	batch := env.createBatch(t, "Batch A")

	tests := []struct {
		name    string
		inviter user.User
		data    invite.NewInvitation
		wantErr error
	}{
		{
			name:    "admin invites teacher",
			inviter: admin,
			data:    invite.NewInvitation{Email: "t2@test.cd", Role: user.RoleTeacher},
		},
		{
			name:    "admin invites admin",
			inviter: admin,
			data:    invite.NewInvitation{Email: "a2@test.cd", Role: user.RoleAdmin},
		},
		{
			name:    "teacher invites student",
			inviter: teacher,
			data:    invite.NewInvitation{Email: "s2@test.cd", Role: user.RoleStudent, BatchID: batch.ID},
		},
		{
			name:    "teacher cannot invite teacher",
			inviter: teacher,
			data:    invite.NewInvitation{Email: "t3@test.cd", Role: user.RoleTeacher},
			wantErr: invite.ErrPermissionDenied,
		},
		{
			name:    "student cannot invite",
			inviter: studentUsr,
			data:    invite.NewInvitation{Email: "s3@test.cd", Role: user.RoleStudent},
			wantErr: invite.ErrPermissionDenied,
		},
		{
			name:    "unknown batch",
			inviter: admin,
			data:    invite.NewInvitation{Email: "s4@test.cd", Role: user.RoleStudent, BatchID: "nope"},
			wantErr: student.ErrBatchNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := env.svc.Create(ctx, tt.inviter, tt.data)
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() failed, %v", err)
			}
			if inv.Token == "" {
				t.Error("Create() returned an invitation without a token")
			}
			if inv.IsUsed {
				t.Error("Create() returned a used invitation")
			}
			if inv.InvitedByID != tt.inviter.ID {
				t.Errorf("InvitedByID = %s, want %s", inv.InvitedByID, tt.inviter.ID)
			}
		})
	}
}

func TestService_Accept(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	admin := env.createUser(t, "admin", user.RoleAdmin)
	batch := env.createBatch(t, "Batch A")
	otherBatch := env.createBatch(t, "Batch B")

	t.Run("student invitation batch wins over payload", func(t *testing.T) {
		inv := env.createInvitation(t, invite.Invitation{
			Email: "stud@test.cd", Role: user.RoleStudent, BatchID: batch.ID, InvitedByID: admin.ID,
		})
		data := acceptPayload(inv.Token, "stud")
		data.BatchID = otherBatch.ID

		res, err := env.svc.Accept(ctx, data)
		if err != nil {
			t.Fatalf("Accept() failed, %v", err)
		}
		if res.User.Role != user.RoleStudent {
			t.Errorf("Role = %s, want %s", res.User.Role, user.RoleStudent)
		}
		if res.StudentProfile == nil {
			t.Fatal("Accept() did not create a student profile")
		}
		if res.StudentProfile.BatchID != batch.ID {
			t.Errorf("BatchID = %s, want the invitation's %s", res.StudentProfile.BatchID, batch.ID)
		}
		if res.TeacherProfile != nil || res.AdminProfile != nil {
			t.Error("Accept() created profiles for other roles")
		}
	})

	t.Run("teacher invitation", func(t *testing.T) {
		inv := env.createInvitation(t, invite.Invitation{
			Email: "teach@test.cd", Role: user.RoleTeacher, InvitedByID: admin.ID,
		})
		data := acceptPayload(inv.Token, "teach")
		data.Subject = "Physics"

		res, err := env.svc.Accept(ctx, data)
		if err != nil {
			t.Fatalf("Accept() failed, %v", err)
		}
		if res.TeacherProfile == nil {
			t.Fatal("Accept() did not create a teacher profile")
		}
		if res.TeacherProfile.Subject != "Physics" {
			t.Errorf("Subject = %s, want Physics", res.TeacherProfile.Subject)
		}
		if res.StudentProfile != nil {
			t.Error("Accept() created a student profile for a teacher invitation")
		}
	})

	t.Run("role synonym Administrator", func(t *testing.T) {
		inv := env.createInvitation(t, invite.Invitation{
			Email: "boss@test.cd", Role: "Administrator", InvitedByID: admin.ID,
		})
		res, err := env.svc.Accept(ctx, acceptPayload(inv.Token, "boss"))
		if err != nil {
			t.Fatalf("Accept() failed, %v", err)
		}
		if res.User.Role != user.RoleAdmin {
			t.Errorf("Role = %s, want %s", res.User.Role, user.RoleAdmin)
		}
		if res.AdminProfile == nil {
			t.Error("Accept() did not create an admin profile")
		}
		if res.StudentProfile != nil {
			t.Error("Accept() created a student profile for an admin invitation")
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := env.svc.Accept(ctx, acceptPayload("nope", "nobody"))
		if errors.Cause(err) != invite.ErrInvalidToken {
			t.Errorf("Accept() error = %v, want %v", err, invite.ErrInvalidToken)
		}
	})

	t.Run("second accept fails", func(t *testing.T) {
		inv := env.createInvitation(t, invite.Invitation{
			Email: "once@test.cd", Role: user.RoleStudent, InvitedByID: admin.ID,
		})
		if _, err := env.svc.Accept(ctx, acceptPayload(inv.Token, "once")); err != nil {
			t.Fatalf("first Accept() failed, %v", err)
		}
		_, err := env.svc.Accept(ctx, acceptPayload(inv.Token, "twice"))
		if errors.Cause(err) != invite.ErrInvalidToken {
			t.Errorf("second Accept() error = %v, want %v", err, invite.ErrInvalidToken)
		}
	})

	t.Run("duplicate username rolls everything back", func(t *testing.T) {
		env.createUser(t, "taken", user.RoleStudent)
		inv := env.createInvitation(t, invite.Invitation{
			Email: "dup@test.cd", Role: user.RoleStudent, InvitedByID: admin.ID,
		})
		_, err := env.svc.Accept(ctx, acceptPayload(inv.Token, "taken"))
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Accept() error = %v, want a validation error", err)
		}

		// the token must remain usable
		if _, err = env.svc.Accept(ctx, acceptPayload(inv.Token, "nottaken")); err != nil {
			t.Errorf("retry Accept() failed, %v", err)
		}
	})
}

func TestService_Accept_concurrent(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin", user.RoleAdmin)
	inv := env.createInvitation(t, invite.Invitation{
		Email: "race@test.cd", Role: user.RoleStudent, InvitedByID: admin.ID,
	})

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Accept(context.Background(), acceptPayload(inv.Token, fmt.Sprintf("racer%d", i)))
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if errors.Cause(err) != invite.ErrInvalidToken {
			t.Errorf("Accept() unexpected error = %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Accept() won %d times, want exactly 1", wins)
	}
}

func TestService_Resend(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	admin := env.createUser(t, "admin", user.RoleAdmin)

	inv := env.createInvitation(t, invite.Invitation{
		Email: "again@test.cd", Role: user.RoleStudent, InvitedByID: admin.ID,
	})
	if _, _, err := env.svc.Resend(ctx, inv.ID); err != nil {
		t.Fatalf("Resend() failed, %v", err)
	}

	if _, err := env.svc.Accept(ctx, acceptPayload(inv.Token, "again")); err != nil {
		t.Fatalf("Accept() failed, %v", err)
	}
	if _, _, err := env.svc.Resend(ctx, inv.ID); errors.Cause(err) != invite.ErrAlreadyUsed {
		t.Errorf("Resend() error = %v, want %v", err, invite.ErrAlreadyUsed)
	}

	if _, _, err := env.svc.Resend(ctx, "nope"); errors.Cause(err) != invite.ErrNotFound {
		t.Errorf("Resend() error = %v, want %v", err, invite.ErrNotFound)
	}
}
