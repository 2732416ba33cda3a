package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
)

type userApi struct {
	svc        *user.Service
	studentSvc *student.Service
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := userApi{
		svc:        opts.UserSvc,
		studentSvc: opts.StudentSvc,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)
	ug.POST("/signup", api.signup)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/roles", api.queryRoles, roleMiddleware(user.RoleAdmin))
	ag.GET("/me", api.retrieveMe)
	ag.PUT("/me", api.updateMe)
	ag.GET("/current", api.retrieveCurrent)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := authenticate(ctx, data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// signup self-registers a student account. Staff accounts only come out
// of the invitation flow or the admin CLI.
func (api *userApi) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	data.Role = user.RoleStudent
	if err := data.Validate(ctx.Request().Context(), api.svc); err != nil {
		return err
	}

	usr, err := api.studentSvc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up student")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) retrieveMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// retrieveCurrent composes the account with its role-specific profile.
func (api *userApi) retrieveCurrent(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c := ctx.Request().Context()

	res := CurrentUserResponse{User: usr}
	switch usr.Role {
	case user.RoleStudent:
		if prof, err := api.studentSvc.GetByUserID(c, usr.ID); err == nil {
			res.StudentProfile = &prof
		} else if errors.Cause(err) != student.ErrNotFound {
			return errors.Wrap(err, "getting student profile")
		}
	case user.RoleTeacher:
		if prof, err := api.svc.TeacherProfile(c, usr); err == nil {
			res.TeacherProfile = &prof
		} else if errors.Cause(err) != user.ErrNotFound {
			return errors.Wrap(err, "getting teacher profile")
		}
	case user.RoleAdmin:
		if prof, err := api.svc.AdminProfile(c, usr); err == nil {
			res.AdminProfile = &prof
		} else if errors.Cause(err) != user.ErrNotFound {
			return errors.Wrap(err, "getting admin profile")
		}
	}
	return ctx.JSON(http.StatusOK, res)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	CurrentUserResponse struct {
		User           user.User               `json:"user"`
		StudentProfile *student.StudentProfile `json:"student_profile,omitempty"`
		TeacherProfile *user.TeacherProfile    `json:"teacher_profile,omitempty"`
		AdminProfile   *user.AdminProfile      `json:"admin_profile,omitempty"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return core.Validate.Struct(lr)
}
