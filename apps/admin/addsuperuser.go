package main

import (
	"context"
	"time"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/user"
)

// addSuperUser updates or creates an active admin account.
func (cli *commandLine) addSuperUser(uname, email, pwd string) error {
	var usr user.User
	var err error
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	if usr, err = cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname); err != nil {
		if err != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	usr.Role = user.RoleAdmin
	usr.IsActive = true
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
