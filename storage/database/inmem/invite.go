package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/invite"
)

type invitationRepository struct {
	db *DB
}

func NewInvitationRepository(db *DB) invite.Repository {
	return &invitationRepository{db: db}
}

func (repo *invitationRepository) annotate(inv invite.Invitation) invite.Invitation {
	if usr, ok := repo.db.users[inv.InvitedByID]; ok {
		inv.InvitedByName = usr.FullName()
	}
	if b, ok := repo.db.batches[inv.BatchID]; ok {
		inv.BatchName = b.Name
	}
	return inv
}

func (repo *invitationRepository) CreateInvitation(_ context.Context, inv invite.Invitation) (invite.Invitation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	repo.db.invitations[inv.ID] = &inv
	return inv, nil
}

func (repo *invitationRepository) QueryAllInvitations(_ context.Context, ordering ...core.DBOrdering) ([]invite.Invitation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	invs := make([]invite.Invitation, 0, len(repo.db.invitations))
	for _, inv := range repo.db.invitations {
		invs = append(invs, repo.annotate(*inv))
	}
	sortInvitations(invs, ordering)
	return invs, nil
}

func compareInvitations(a, b invite.Invitation, field string) int {
	switch field {
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(a.Role, b.Role)
	case "is_used":
		switch {
		case !a.IsUsed && b.IsUsed:
			return -1
		case a.IsUsed && !b.IsUsed:
			return 1
		}
		return 0
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func sortInvitations(invs []invite.Invitation, orderings []core.DBOrdering) {
	if len(orderings) == 0 {
		sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
		return
	}
	sort.SliceStable(invs, func(i, j int) bool {
		for _, ord := range orderings {
			cmp := compareInvitations(invs[i], invs[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func (repo *invitationRepository) GetInvitationByID(_ context.Context, id string) (invite.Invitation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if inv, ok := repo.db.invitations[id]; ok {
		return repo.annotate(*inv), nil
	}
	return invite.Invitation{}, invite.ErrNotFound
}

func (repo *invitationRepository) GetUsableInvitationByToken(_ context.Context, token string, _ ...core.DBExecutor) (invite.Invitation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, inv := range repo.db.invitations {
		if inv.Token == token && !inv.IsUsed {
			return *inv, nil
		}
	}
	return invite.Invitation{}, invite.ErrInvalidToken
}

func (repo *invitationRepository) MarkInvitationUsed(_ context.Context, inv invite.Invitation, _ ...core.DBExecutor) (invite.Invitation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.invitations[inv.ID]
	if !ok || orig.IsUsed {
		return invite.Invitation{}, invite.ErrInvalidToken
	}
	orig.IsUsed = true
	orig.UsedAt = time.Now().UTC()
	return *orig, nil
}
