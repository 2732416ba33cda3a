package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

type userRow struct {
	ID           string      `db:"id"`
	FirstName    null.String `db:"first_name"`
	LastName     null.String `db:"last_name"`
	Username     string      `db:"username"`
	Email        string      `db:"email"`
	Phone        null.String `db:"phone"`
	Role         string      `db:"role"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		FirstName:    r.FirstName.String,
		LastName:     r.LastName.String,
		Username:     r.Username,
		Email:        r.Email,
		Phone:        r.Phone.String,
		Role:         r.Role,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Time,
	}
}

const userColumns = `id, first_name, last_name, username, email, phone, role, is_active, password_hash, created_at, updated_at, last_login`

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	excludedIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excludedIDs = append(excludedIDs, usr.ID)
	}

	query := `SELECT username, email FROM "user" WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedIDs) > 0 {
		var err error
		query, args, err = sqlx.In(query+` AND id NOT IN (?)`, username, email, excludedIDs)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
	}

	db := ext(repo.db, exec)
	query = db.Rebind(query)

	var rows []userRow
	if err := sqlx.SelectContext(ctx, db, &rows, query, args...); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	for _, row := range rows {
		if row.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	query := `
		INSERT INTO "user" (id, first_name, last_name, username, email, phone, role, is_active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := ext(repo.db, exec).ExecContext(ctx, query,
		usr.ID, null.NewString(usr.FirstName, usr.FirstName != ""), null.NewString(usr.LastName, usr.LastName != ""),
		usr.Username, usr.Email, null.NewString(usr.Phone, usr.Phone != ""),
		usr.Role, usr.IsActive, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		switch {
		case uniqueViolation(err, "user_username_uix"):
			return user.User{}, user.ErrUsernameExists
		case uniqueViolation(err, "user_email_uix"):
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM "user" WHERE ` + where
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `username = $1`, username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `email = $1`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `username = $1 OR email = $1`, username)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	if isActive != nil {
		usr.IsActive = *isActive
	}
	query := `
		UPDATE "user"
		SET first_name = $2, last_name = $3, username = $4, email = $5, phone = $6, role = $7, is_active = $8, updated_at = $9
		WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		usr.ID, null.NewString(usr.FirstName, usr.FirstName != ""), null.NewString(usr.LastName, usr.LastName != ""),
		usr.Username, usr.Email, null.NewString(usr.Phone, usr.Phone != ""), usr.Role, usr.IsActive, usr.UpdatedAt,
	)
	if err != nil {
		switch {
		case uniqueViolation(err, "user_username_uix"):
			return user.User{}, user.ErrUsernameExists
		case uniqueViolation(err, "user_email_uix"):
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	query := `
		INSERT INTO "user" (id, first_name, last_name, username, email, phone, role, is_active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, username = EXCLUDED.username,
		    email = EXCLUDED.email, phone = EXCLUDED.phone, role = EXCLUDED.role, is_active = EXCLUDED.is_active,
		    password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at`
	_, err := repo.db.ExecContext(ctx, query,
		usr.ID, null.NewString(usr.FirstName, usr.FirstName != ""), null.NewString(usr.LastName, usr.LastName != ""),
		usr.Username, usr.Email, null.NewString(usr.Phone, usr.Phone != ""),
		usr.Role, usr.IsActive, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		switch {
		case uniqueViolation(err, "user_username_uix"):
			return user.User{}, user.ErrUsernameExists
		case uniqueViolation(err, "user_email_uix"):
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "upserting user")
	}
	return usr, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	usr.LastLogin = time.Now().UTC()
	query := `UPDATE "user" SET last_login = $2 WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, usr.ID, usr.LastLogin); err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := ext(repo.db, exec).ExecContext(ctx, `DELETE FROM "user" WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// role-specific profiles

type adminProfileRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	Department null.String `db:"department"`
}

type teacherProfileRow struct {
	ID      string      `db:"id"`
	UserID  string      `db:"user_id"`
	Subject null.String `db:"subject"`
}

func (repo *userRepository) CreateAdminProfile(ctx context.Context, prof user.AdminProfile, exec ...core.DBExecutor) (user.AdminProfile, error) {
	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	query := `INSERT INTO admin_profile (id, user_id, department) VALUES ($1, $2, $3)`
	_, err := ext(repo.db, exec).ExecContext(ctx, query, prof.ID, prof.UserID, null.NewString(prof.Department, prof.Department != ""))
	if err != nil {
		return user.AdminProfile{}, errors.Wrap(err, "creating admin profile")
	}
	return prof, nil
}

func (repo *userRepository) CreateTeacherProfile(ctx context.Context, prof user.TeacherProfile, exec ...core.DBExecutor) (user.TeacherProfile, error) {
	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	query := `INSERT INTO teacher_profile (id, user_id, subject) VALUES ($1, $2, $3)`
	_, err := ext(repo.db, exec).ExecContext(ctx, query, prof.ID, prof.UserID, null.NewString(prof.Subject, prof.Subject != ""))
	if err != nil {
		return user.TeacherProfile{}, errors.Wrap(err, "creating teacher profile")
	}
	return prof, nil
}

func (repo *userRepository) GetAdminProfileByUserID(ctx context.Context, userID string) (user.AdminProfile, error) {
	var row adminProfileRow
	query := `SELECT id, user_id, department FROM admin_profile WHERE user_id = $1`
	if err := repo.db.GetContext(ctx, &row, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return user.AdminProfile{}, user.ErrNotFound
		}
		return user.AdminProfile{}, errors.Wrap(err, "getting admin profile")
	}
	return user.AdminProfile{ID: row.ID, UserID: row.UserID, Department: row.Department.String}, nil
}

func (repo *userRepository) GetTeacherProfileByUserID(ctx context.Context, userID string) (user.TeacherProfile, error) {
	var row teacherProfileRow
	query := `SELECT id, user_id, subject FROM teacher_profile WHERE user_id = $1`
	if err := repo.db.GetContext(ctx, &row, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return user.TeacherProfile{}, user.ErrNotFound
		}
		return user.TeacherProfile{}, errors.Wrap(err, "getting teacher profile")
	}
	return user.TeacherProfile{ID: row.ID, UserID: row.UserID, Subject: row.Subject.String}, nil
}
