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
	"github.com/darasa-app/darasa/core/invite"
)

type invitationRepository struct {
	db *sqlx.DB
}

func NewInvitationRepository(db *sqlx.DB) *invitationRepository {
	return &invitationRepository{db: db}
}

type invitationRow struct {
	ID            string      `db:"id"`
	Email         string      `db:"email"`
	Role          string      `db:"role"`
	InvitedByID   string      `db:"invited_by"`
	BatchID       null.String `db:"batch_id"`
	Token         string      `db:"token"`
	IsUsed        bool        `db:"is_used"`
	UsedAt        null.Time   `db:"used_at"`
	CreatedAt     time.Time   `db:"created_at"`
	InvitedByName null.String `db:"invited_by_name"`
	BatchName     null.String `db:"batch_name"`
}

func (r invitationRow) toInvitation() invite.Invitation {
	return invite.Invitation{
		ID:            r.ID,
		Email:         r.Email,
		Role:          r.Role,
		BatchID:       r.BatchID.String,
		InvitedByID:   r.InvitedByID,
		Token:         r.Token,
		IsUsed:        r.IsUsed,
		UsedAt:        r.UsedAt.Time,
		CreatedAt:     r.CreatedAt,
		InvitedByName: r.InvitedByName.String,
		BatchName:     r.BatchName.String,
	}
}

const invitationSelect = `
	SELECT i.id, i.email, i.role, i.invited_by, i.batch_id, i.token, i.is_used, i.used_at, i.created_at,
	       trim(concat(u.first_name, ' ', u.last_name)) AS invited_by_name, b.name AS batch_name
	FROM invitation i
	JOIN "user" u ON u.id = i.invited_by
	LEFT JOIN batch b ON b.id = i.batch_id`

func (repo *invitationRepository) CreateInvitation(ctx context.Context, inv invite.Invitation) (invite.Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	query := `
		INSERT INTO invitation (id, email, role, invited_by, batch_id, token, is_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`
	_, err := repo.db.ExecContext(ctx, query,
		inv.ID, inv.Email, inv.Role, inv.InvitedByID, null.NewString(inv.BatchID, inv.BatchID != ""), inv.Token, inv.CreatedAt,
	)
	if err != nil {
		return invite.Invitation{}, errors.Wrap(err, "creating invitation")
	}
	return inv, nil
}

var invitationOrderColumns = map[string]string{
	"email":      "i.email",
	"role":       "i.role",
	"is_used":    "i.is_used",
	"created_at": "i.created_at",
}

func (repo *invitationRepository) QueryAllInvitations(ctx context.Context, ordering ...core.DBOrdering) ([]invite.Invitation, error) {
	var rows []invitationRow
	query := invitationSelect + orderBy(ordering, invitationOrderColumns, ` ORDER BY i.created_at DESC`)
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying invitations")
	}
	invs := make([]invite.Invitation, 0, len(rows))
	for _, row := range rows {
		invs = append(invs, row.toInvitation())
	}
	return invs, nil
}

func (repo *invitationRepository) GetInvitationByID(ctx context.Context, id string) (invite.Invitation, error) {
	var row invitationRow
	if err := repo.db.GetContext(ctx, &row, invitationSelect+` WHERE i.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return invite.Invitation{}, invite.ErrNotFound
		}
		return invite.Invitation{}, errors.Wrap(err, "getting invitation")
	}
	return row.toInvitation(), nil
}

// GetUsableInvitationByToken takes a row lock so two concurrent accepts of
// the same token serialize; the loser re-reads is_used = true and gets
// ErrInvalidToken.
func (repo *invitationRepository) GetUsableInvitationByToken(ctx context.Context, token string, exec ...core.DBExecutor) (invite.Invitation, error) {
	query := `
		SELECT id, email, role, invited_by, batch_id, token, is_used, used_at, created_at
		FROM invitation
		WHERE token = $1 AND is_used = FALSE
		FOR UPDATE`
	var row invitationRow
	if err := sqlx.GetContext(ctx, ext(repo.db, exec), &row, query, token); err != nil {
		if err == sql.ErrNoRows {
			return invite.Invitation{}, invite.ErrInvalidToken
		}
		return invite.Invitation{}, errors.Wrap(err, "getting usable invitation")
	}
	return row.toInvitation(), nil
}

func (repo *invitationRepository) MarkInvitationUsed(ctx context.Context, inv invite.Invitation, exec ...core.DBExecutor) (invite.Invitation, error) {
	inv.IsUsed = true
	inv.UsedAt = time.Now().UTC()
	query := `UPDATE invitation SET is_used = TRUE, used_at = $2 WHERE id = $1 AND is_used = FALSE`
	res, err := ext(repo.db, exec).ExecContext(ctx, query, inv.ID, inv.UsedAt)
	if err != nil {
		return invite.Invitation{}, errors.Wrap(err, "marking invitation used")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invite.Invitation{}, invite.ErrInvalidToken
	}
	return inv, nil
}
