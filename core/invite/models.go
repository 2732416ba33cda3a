package invite

import (
	"time"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
)

// Invitation is a single-use token inviting an email address to register
// with a preassigned role (and batch, for students).
type Invitation struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	BatchID     string    `json:"batch_id,omitempty"`
	InvitedByID string    `json:"invited_by_id"`
	Token       string    `json:"token"`
	IsUsed      bool      `json:"is_used"`
	UsedAt      time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// read-only, filled on queries
	InvitedByName string `json:"invited_by_name,omitempty"`
	BatchName     string `json:"batch_name,omitempty"`
}

// NewInvitation contains the information needed to invite someone.
// Role accepts synonyms ("administrator", "lecturer", "instructor");
// anything unrecognized invites a student.
type NewInvitation struct {
	Email   string `json:"email" validate:"required,email"`
	Role    string `json:"role"`
	BatchID string `json:"batch_id"`
}

func (ni *NewInvitation) Validate() error {
	ni.Email = core.CleanString(ni.Email, true /* lower */)
	ni.Role = user.NormalizeRole(ni.Role)
	return core.Validate.Struct(ni)
}

// AcceptInvitation registers the account for a usable invitation token.
// Email and role come from the invitation, never from this payload.
type AcceptInvitation struct {
	Token           string `json:"token" validate:"required"`
	Username        string `json:"username" validate:"required,alphanum_"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`

	// student extras; BatchID is only honored when the invitation itself
	// carries none
	BatchID string `json:"batch_id"`
	student.ProfileFields

	// teacher / admin extras
	Subject    string `json:"subject"`
	Department string `json:"department"`
}

func (ai *AcceptInvitation) Validate() error {
	ai.Token = core.CleanString(ai.Token)
	ai.Username = core.CleanString(ai.Username, true /* lower */)
	ai.FirstName = core.CleanString(ai.FirstName)
	ai.LastName = core.CleanString(ai.LastName)
	ai.Subject = core.CleanString(ai.Subject)
	ai.Department = core.CleanString(ai.Department)
	if err := core.Validate.Struct(ai); err != nil {
		return err
	}
	return user.ValidatePassword(ai.Password, ai.Username, ai.FirstName, ai.LastName)
}

// AcceptResult is what a successful acceptance produces.
type AcceptResult struct {
	User           user.User               `json:"user"`
	StudentProfile *student.StudentProfile `json:"student_profile,omitempty"`
	TeacherProfile *user.TeacherProfile    `json:"teacher_profile,omitempty"`
	AdminProfile   *user.AdminProfile      `json:"admin_profile,omitempty"`
}
