package services

import (
	"errors"
	"sort"
	"time"

	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// putAttempts bounds how often Put retries after losing a race for the
// pending slot of a target.
const putAttempts = 3

// InvitationStore persists invitations and project memberships. It is the
// only writer of ProjectMembership rows.
type InvitationStore struct {
	db  *gorm.DB
	now func() time.Time
	log zerolog.Logger
}

func NewInvitationStore(db *gorm.DB) *InvitationStore {
	return &InvitationStore{
		db:  db,
		now: time.Now,
		log: logger.Component("invitation_store"),
	}
}

// WithTx returns a copy of the store that runs every query on tx.
func (s *InvitationStore) WithTx(tx *gorm.DB) *InvitationStore {
	clone := *s
	clone.db = tx
	return &clone
}

// Transaction runs fn inside a database transaction. A non-nil error from fn
// rolls back everything fn wrote through the store it was handed.
func (s *InvitationStore) Transaction(fn func(tx *InvitationStore) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(s.WithTx(tx))
	})
}

// Get loads an invitation by its code.
func (s *InvitationStore) Get(code string) (*models.TeamInvitation, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	var inv models.TeamInvitation
	err := s.db.Preload("Project").Preload("Inviter").
		Where("invitation_code = ?", code).
		First(&inv).Error
	if err != nil {
		return nil, storeError(err, newError(KindNotFound, "invitation not found"))
	}
	return &inv, nil
}

// GetByID loads an invitation that belongs to the given project.
func (s *InvitationStore) GetByID(projectID, id uint) (*models.TeamInvitation, error) {
	var inv models.TeamInvitation
	err := s.db.Where("id = ? AND project_id = ?", id, projectID).First(&inv).Error
	if err != nil {
		return nil, storeError(err, newError(KindNotFound, "invitation not found"))
	}
	return &inv, nil
}

// Put inserts a new pending invitation, superseding any pending invitation
// that holds the same (project, target) slot or one of the aliases, which are
// the other slots the same person can be addressed by. The superseded rows
// are marked expired. When a concurrent writer claims the slot first, Put
// retries so the last writer ends up holding it.
func (s *InvitationStore) Put(inv *models.TeamInvitation, aliases ...string) error {
	if inv.PendingSlot == nil || *inv.PendingSlot == "" {
		return newError(KindInvalidTarget, "invitation has no target")
	}
	slots := append([]string{*inv.PendingSlot}, aliases...)

	var err error
	for attempt := 1; attempt <= putAttempts; attempt++ {
		var superseded int64
		err = s.db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.TeamInvitation{}).
				Where("project_id = ? AND pending_slot IN ?", inv.ProjectID, slots).
				Updates(map[string]interface{}{
					"status":       models.InvitationExpired,
					"pending_slot": nil,
				})
			if res.Error != nil {
				return res.Error
			}
			superseded = res.RowsAffected
			return tx.Create(inv).Error
		})
		if err == nil {
			if superseded > 0 {
				s.log.Debug().
					Uint("project_id", inv.ProjectID).
					Strs("slots", slots).
					Int64("superseded", superseded).
					Msg("superseded pending invitation")
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		inv.ID = 0
		s.log.Warn().
			Uint("project_id", inv.ProjectID).
			Int("attempt", attempt).
			Msg("pending slot taken concurrently, retrying")
	}
	return storeError(err, ErrNotFound)
}

// Transition moves a pending invitation to the given status. It is a
// compare-and-swap on status: false means another caller moved it first.
func (s *InvitationStore) Transition(id uint, to models.InvitationStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":       to,
		"pending_slot": nil,
	}
	if to == models.InvitationAccepted || to == models.InvitationDeclined {
		updates["responded_at"] = s.now()
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.Model(&models.TeamInvitation{}).
		Where("id = ? AND status = ?", id, models.InvitationPending).
		Updates(updates)
	if res.Error != nil {
		return false, storeError(res.Error, ErrNotFound)
	}
	return res.RowsAffected == 1, nil
}

// expireOverdue lazily marks past-due pending invitations as expired and
// returns the ones that are still live.
func (s *InvitationStore) expireOverdue(invs []models.TeamInvitation) []models.TeamInvitation {
	now := s.now()
	live := invs[:0]
	for i := range invs {
		inv := invs[i]
		if inv.Status == models.InvitationPending && inv.IsExpiredAt(now) {
			if _, err := s.Transition(inv.ID, models.InvitationExpired, nil); err != nil {
				s.log.Warn().Err(err).Uint("invitation_id", inv.ID).Msg("failed to mark invitation expired")
			}
			inv.Status = models.InvitationExpired
			inv.PendingSlot = nil
		}
		live = append(live, inv)
	}
	return live
}

// ListPendingForUser returns the live invitations addressed to the user,
// either directly or through one of their contacts.
func (s *InvitationStore) ListPendingForUser(userID uint, email, phone string) ([]models.TeamInvitation, error) {
	query := s.db.Preload("Project").Preload("Inviter").
		Where("status = ?", models.InvitationPending)

	cond := s.db.Where("invited_user_id = ?", userID)
	if email != "" {
		cond = cond.Or("invited_email = ?", email)
	}
	if phone != "" {
		cond = cond.Or("invited_phone = ?", phone)
	}

	var invs []models.TeamInvitation
	if err := query.Where(cond).Order("created_at DESC").Find(&invs).Error; err != nil {
		return nil, storeError(err, ErrNotFound)
	}

	all := s.expireOverdue(invs)
	pending := make([]models.TeamInvitation, 0, len(all))
	for _, inv := range all {
		if inv.Status == models.InvitationPending {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

// ListForProject returns a project's invitations, optionally filtered by status.
func (s *InvitationStore) ListForProject(projectID uint, status models.InvitationStatus) ([]models.TeamInvitation, error) {
	query := s.db.Preload("Inviter").Where("project_id = ?", projectID)
	switch status {
	case "":
	case models.InvitationExpired:
		// overdue pending rows count as expired once lazily marked
		query = query.Where("status IN ?", []models.InvitationStatus{models.InvitationExpired, models.InvitationPending})
	default:
		query = query.Where("status = ?", status)
	}

	var invs []models.TeamInvitation
	if err := query.Order("created_at DESC").Find(&invs).Error; err != nil {
		return nil, storeError(err, ErrNotFound)
	}

	invs = s.expireOverdue(invs)
	if status == "" {
		return invs, nil
	}
	filtered := make([]models.TeamInvitation, 0, len(invs))
	for _, inv := range invs {
		if inv.Status == status {
			filtered = append(filtered, inv)
		}
	}
	return filtered, nil
}

// ListMembers returns the active memberships of a project, owner first.
func (s *InvitationStore) ListMembers(projectID uint) ([]models.ProjectMembership, error) {
	var members []models.ProjectMembership
	err := s.db.Preload("User").
		Where("project_id = ? AND status = ?", projectID, models.MembershipActive).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, storeError(err, ErrNotFound)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Role.Rank() < members[j].Role.Rank()
	})
	return members, nil
}

// GetMembership returns the membership row of a user on a project in any status.
func (s *InvitationStore) GetMembership(projectID, userID uint) (*models.ProjectMembership, error) {
	var m models.ProjectMembership
	err := s.db.Where("project_id = ? AND user_id = ?", projectID, userID).First(&m).Error
	if err != nil {
		return nil, storeError(err, newError(KindNotFound, "membership not found"))
	}
	return &m, nil
}

// MembershipUpsert describes the desired active membership of a user.
type MembershipUpsert struct {
	ProjectID    uint
	UserID       uint
	Role         models.Role
	Email        *string
	Phone        *string
	InvitationID *uint
}

// UpsertMembership makes the user an active member with the given role.
// Calling it again with the same arguments leaves a single row in the same
// state. An owner membership is never downgraded.
func (s *InvitationStore) UpsertMembership(in MembershipUpsert) (*models.ProjectMembership, error) {
	if !in.Role.IsValid() {
		return nil, newError(KindInvalidTarget, "invalid role")
	}

	existing, err := s.GetMembership(in.ProjectID, in.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.IsActive() && existing.Role == models.RoleOwner {
		return existing, nil
	}

	now := s.now()
	userID := in.UserID
	m := models.ProjectMembership{
		ProjectID:    in.ProjectID,
		UserID:       &userID,
		InvitedEmail: in.Email,
		InvitedPhone: in.Phone,
		Role:         in.Role,
		Status:       models.MembershipActive,
		Permissions:  datatypes.JSONSlice[models.Permission](in.Role.Permissions()),
		InvitationID: in.InvitationID,
		JoinedAt:     &now,
	}

	columns := []string{"role", "status", "permissions", "invitation_id", "joined_at", "updated_at"}
	if in.Email != nil {
		columns = append(columns, "invited_email")
	}
	if in.Phone != nil {
		columns = append(columns, "invited_phone")
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&m).Error
	if err != nil {
		return nil, storeError(err, ErrNotFound)
	}

	return s.GetMembership(in.ProjectID, in.UserID)
}

// SetMemberRole changes the role of an active membership and recomputes its
// permissions.
func (s *InvitationStore) SetMemberRole(projectID, userID uint, role models.Role) error {
	res := s.db.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, models.MembershipActive).
		Updates(map[string]interface{}{
			"role":        role,
			"permissions": datatypes.JSONSlice[models.Permission](role.Permissions()),
		})
	if res.Error != nil {
		return storeError(res.Error, ErrNotFound)
	}
	if res.RowsAffected == 0 {
		return newError(KindNotFound, "membership not found")
	}
	return nil
}

// EndMembership marks an active membership as ended. History is kept.
func (s *InvitationStore) EndMembership(projectID, userID uint) error {
	res := s.db.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, models.MembershipActive).
		Update("status", models.MembershipDeclined)
	if res.Error != nil {
		return storeError(res.Error, ErrNotFound)
	}
	if res.RowsAffected == 0 {
		return newError(KindNotFound, "membership not found")
	}
	return nil
}
