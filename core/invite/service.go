package invite

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("invitation not found")
	ErrInvalidToken     = errors.New("invalid or already used invitation token")
	ErrPermissionDenied = errors.New("you do not have permission to invite this role")
	ErrAlreadyUsed      = errors.New("invitation has already been used")
)

type (
	Repository interface {
		CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		QueryAllInvitations(ctx context.Context, ordering ...core.DBOrdering) ([]Invitation, error)
		GetInvitationByID(ctx context.Context, id string) (Invitation, error)
		// GetUsableInvitationByToken returns the unused invitation matching
		// token, locking the row for the remainder of the transaction when
		// called with a transactional executor.
		GetUsableInvitationByToken(ctx context.Context, token string, exec ...core.DBExecutor) (Invitation, error)
		MarkInvitationUsed(ctx context.Context, inv Invitation, exec ...core.DBExecutor) (Invitation, error)
	}

	Service struct {
		db          core.Transactor
		repo        Repository
		usrRepo     user.Repository
		studentRepo student.Repository
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewService(db core.Transactor, repo Repository, usrRepo user.Repository, studentRepo student.Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		db:          db,
		repo:        repo,
		usrRepo:     usrRepo,
		studentRepo: studentRepo,
		mailSvc:     mailSvc,
		logger:      logger,
	}
}

func (svc *Service) Repo() Repository { return svc.repo }

// Create issues an invitation on behalf of inviter. Admins may invite any
// role; teachers may only invite students.
func (svc *Service) Create(ctx context.Context, inviter user.User, ni NewInvitation) (Invitation, error) {
	if err := checkInvitePermission(inviter, ni.Role); err != nil {
		return Invitation{}, err
	}
	if ni.BatchID != "" {
		if _, err := svc.studentRepo.GetBatchByID(ctx, ni.BatchID); err != nil {
			return Invitation{}, err
		}
	}

	inv := Invitation{
		Email:       ni.Email,
		Role:        ni.Role,
		BatchID:     ni.BatchID,
		InvitedByID: inviter.ID,
		Token:       uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateInvitation(ctx, inv)
}

func (svc *Service) Query(ctx context.Context, ordering ...core.DBOrdering) ([]Invitation, error) {
	return svc.repo.QueryAllInvitations(ctx, ordering...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Invitation, error) {
	return svc.repo.GetInvitationByID(ctx, id)
}

// Link is the frontend URL the invitee follows to accept.
func (svc *Service) Link(inv Invitation) string {
	return strings.TrimRight(core.Conf.FrontendBaseURL, "/") + "/accept-invitation?token=" + inv.Token
}

// SendInvitationMail dispatches the invitation email when enabled and
// reports whether it did. The link is usable either way; disabled email
// just means the caller has to deliver it out of band.
func (svc *Service) SendInvitationMail(inv Invitation, inviter user.User) bool {
	if !core.Conf.InvitationEmailEnabled {
		return false
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: inv.Email}},
		Subject:      "You have been invited to join " + core.Conf.AppName,
		TemplateName: "invitation",
		TemplateData: struct {
			Role        string
			InviterName string
			Link        string
		}{
			Role:        inv.Role,
			InviterName: inviter.FullName(),
			Link:        svc.Link(inv),
		},
	}
	svc.mailSvc.SendMessages(msg)
	return true
}

// Resend re-dispatches the email for an unused invitation.
func (svc *Service) Resend(ctx context.Context, id string) (Invitation, bool, error) {
	inv, err := svc.repo.GetInvitationByID(ctx, id)
	if err != nil {
		return Invitation{}, false, err
	}
	if inv.IsUsed {
		return Invitation{}, false, ErrAlreadyUsed
	}
	inviter, err := svc.usrRepo.GetUserByID(ctx, inv.InvitedByID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return Invitation{}, false, err
	}
	return inv, svc.SendInvitationMail(inv, inviter), nil
}

// Accept redeems an invitation token: it creates the user account, the
// role-matching profile and marks the token used, all in one transaction.
// Concurrent accepts of the same token race on the row lock; exactly one
// wins, the rest get ErrInvalidToken.
func (svc *Service) Accept(ctx context.Context, ai AcceptInvitation) (AcceptResult, error) {
	var res AcceptResult
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		inv, err := svc.repo.GetUsableInvitationByToken(ctx, ai.Token, exec)
		if err != nil {
			return err
		}
		if err = svc.usrRepo.CheckUsernameUniqueness(ctx, ai.Username, inv.Email, nil, exec); err != nil {
			return uniquenessError(err)
		}

		now := time.Now().UTC()
		usr := user.User{
			FirstName: ai.FirstName,
			LastName:  ai.LastName,
			Username:  ai.Username,
			Email:     inv.Email,
			Role:      user.NormalizeRole(inv.Role),
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(ai.Password); err != nil {
			return err
		}
		if usr, err = svc.usrRepo.CreateUser(ctx, usr, exec); err != nil {
			return uniquenessError(err)
		}
		res.User = usr

		switch usr.Role {
		case user.RoleStudent:
			batchID := inv.BatchID
			if batchID == "" {
				batchID = ai.BatchID
			}
			prof := student.StudentProfile{
				UserID:    usr.ID,
				FirstName: usr.FirstName,
				LastName:  usr.LastName,
				BatchID:   batchID,
			}
			ai.ProfileFields.Apply(&prof)
			if prof.JoiningDate.IsZero() {
				prof.JoiningDate = now.Truncate(24 * time.Hour)
			}
			if prof, err = svc.studentRepo.CreateStudentProfile(ctx, prof, exec); err != nil {
				if errors.Cause(err) == student.ErrRollNoExists {
					return core.NewValidationError(err, core.FieldError{Field: "roll_no", Error: student.ErrRollNoExists.Error()})
				}
				return err
			}
			res.StudentProfile = &prof
		case user.RoleTeacher:
			prof := user.TeacherProfile{UserID: usr.ID, Subject: ai.Subject}
			if prof, err = svc.usrRepo.CreateTeacherProfile(ctx, prof, exec); err != nil {
				return err
			}
			res.TeacherProfile = &prof
		case user.RoleAdmin:
			prof := user.AdminProfile{UserID: usr.ID, Department: ai.Department}
			if prof, err = svc.usrRepo.CreateAdminProfile(ctx, prof, exec); err != nil {
				return err
			}
			res.AdminProfile = &prof
		}

		_, err = svc.repo.MarkInvitationUsed(ctx, inv, exec)
		return err
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return res, nil
}

func checkInvitePermission(inviter user.User, role string) error {
	switch {
	case inviter.IsAdmin():
		return nil
	case inviter.IsTeacher() && role == user.RoleStudent:
		return nil
	}
	return ErrPermissionDenied
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
