package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/invite"
	"github.com/darasa-app/darasa/core/user"
)

type inviteApi struct {
	svc    *invite.Service
	usrSvc *user.Service
}

func registerInviteAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := inviteApi{
		svc:    opts.InviteSvc,
		usrSvc: opts.UserSvc,
	}

	ig := g.Group("/invitations")

	// un-authed: token redemption
	ig.POST("/accept", api.accept)

	// staff endpoints; the service narrows teachers down to student invites
	ag := ig.Group("", jwt, roleMiddleware(user.RoleAdmin, user.RoleTeacher))
	ag.POST("", api.create)
	ag.GET("", api.query)
	ag.POST("/:id/resend", api.resend)
}

// Handlers

func (api *inviteApi) create(ctx echo.Context) error {
	var data invite.NewInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvitation")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	inviter, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	inv, err := api.svc.Create(ctx.Request().Context(), inviter, data)
	if err != nil {
		return errors.Wrap(err, "creating invitation")
	}
	sent := api.svc.SendInvitationMail(inv, inviter)

	return ctx.JSON(http.StatusCreated, InvitationResponse{
		Invitation:   inv,
		Link:         api.svc.Link(inv),
		EmailSent:    sent,
		EmailEnabled: core.Conf.InvitationEmailEnabled,
	})
}

func (api *inviteApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	invs, err := api.svc.Query(ctx.Request().Context(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying invitations")
	}
	if invs == nil {
		invs = []invite.Invitation{}
	}

	pagination := new(Pagination)
	pagination.Bind(ctx)
	start, end := pagination.Slice(len(invs))
	return ctx.JSON(http.StatusOK, PaginatedResponse{
		Count:    len(invs),
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
		Results:  invs[start:end],
	})
}

func (api *inviteApi) resend(ctx echo.Context) error {
	inv, sent, err := api.svc.Resend(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resending invitation")
	}
	return ctx.JSON(http.StatusOK, InvitationResponse{
		Invitation:   inv,
		Link:         api.svc.Link(inv),
		EmailSent:    sent,
		EmailEnabled: core.Conf.InvitationEmailEnabled,
	})
}

func (api *inviteApi) accept(ctx echo.Context) error {
	var data invite.AcceptInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AcceptInvitation")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.Accept(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "accepting invitation")
	}

	// log the fresh account straight in
	token, err := GenerateToken(GetUserClaims(res.User))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, AcceptInvitationResponse{AcceptResult: res, Token: token})
}

type (
	InvitationResponse struct {
		Invitation   invite.Invitation `json:"invitation"`
		Link         string            `json:"link"`
		EmailSent    bool              `json:"email_sent"`
		EmailEnabled bool              `json:"email_enabled"`
	}

	AcceptInvitationResponse struct {
		invite.AcceptResult
		Token string `json:"token"`
	}
)
