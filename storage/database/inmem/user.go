package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.checkUniqueness(username, email, excludedUsers)
}

func (repo *userRepository) checkUniqueness(username, email string, excludedUsers []user.User) error {
	excluded := make(map[string]struct{}, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = struct{}{}
	}
	for _, usr := range repo.db.users {
		if _, ok := excluded[usr.ID]; ok {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// authoritative guard, like the DB unique indexes
	if err := repo.checkUniqueness(usr.Username, usr.Email, nil); err != nil {
		return user.User{}, err
	}
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Username == username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if (usr.Username == username) || (usr.Email == username) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.FirstName = usr.FirstName
	orig.LastName = usr.LastName
	orig.Username = usr.Username
	orig.Email = usr.Email
	orig.Phone = usr.Phone
	orig.Role = usr.Role
	orig.UpdatedAt = usr.UpdatedAt
	return *orig, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	if _, ok := repo.db.users[usr.ID]; ok {
		repo.db.users[usr.ID] = &usr
		repo.db.mu.Unlock()
		return usr, nil
	}
	repo.db.mu.Unlock()
	return repo.CreateUser(ctx, usr)
}

func (repo *userRepository) SetLastLogin(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	orig.LastLogin = time.Now().UTC()
	return *orig, nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.users, id)

	// cascade, like the FK constraints
	for pid, prof := range repo.db.adminProfiles {
		if prof.UserID == id {
			delete(repo.db.adminProfiles, pid)
		}
	}
	for pid, prof := range repo.db.teacherProfiles {
		if prof.UserID == id {
			delete(repo.db.teacherProfiles, pid)
		}
	}
	for pid, prof := range repo.db.studentProfiles {
		if prof.UserID != id {
			continue
		}
		delete(repo.db.studentProfiles, pid)
		for aid, att := range repo.db.attendance {
			if att.StudentID == pid {
				delete(repo.db.attendance, aid)
			}
		}
		for sid, sub := range repo.db.submissions {
			if sub.StudentID == pid {
				delete(repo.db.submissions, sid)
			}
		}
	}
	return nil
}

func (repo *userRepository) CreateAdminProfile(_ context.Context, prof user.AdminProfile, _ ...core.DBExecutor) (user.AdminProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	repo.db.adminProfiles[prof.ID] = &prof
	return prof, nil
}

func (repo *userRepository) CreateTeacherProfile(_ context.Context, prof user.TeacherProfile, _ ...core.DBExecutor) (user.TeacherProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	repo.db.teacherProfiles[prof.ID] = &prof
	return prof, nil
}

func (repo *userRepository) GetAdminProfileByUserID(_ context.Context, userID string) (user.AdminProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, prof := range repo.db.adminProfiles {
		if prof.UserID == userID {
			return *prof, nil
		}
	}
	return user.AdminProfile{}, user.ErrNotFound
}

func (repo *userRepository) GetTeacherProfileByUserID(_ context.Context, userID string) (user.TeacherProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, prof := range repo.db.teacherProfiles {
		if prof.UserID == userID {
			return *prof, nil
		}
	}
	return user.TeacherProfile{}, user.ErrNotFound
}
