package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/utils"
	"github.com/huangang/teamhub/pkg/logger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// errLostRace aborts an accept or decline transaction whose compare-and-swap
// found the invitation no longer pending.
var errLostRace = errors.New("invitation changed concurrently")

// GenerateInvitationCode returns a URL-safe random code of the given length.
func GenerateInvitationCode(length int) (string, error) {
	return gonanoid.New(length)
}

// InvitationService issues invitations and resolves them by code.
type InvitationService struct {
	store    *InvitationStore
	access   *AccessService
	projects ProjectRepository
	users    UserDirectory
	notifier *NotificationService
	ttl      time.Duration
	codeLen  int
	now      func() time.Time
	log      zerolog.Logger
}

func NewInvitationService(
	store *InvitationStore,
	access *AccessService,
	projects ProjectRepository,
	users UserDirectory,
	notifier *NotificationService,
	cfg *config.InvitationConfig,
) *InvitationService {
	ttlDays := cfg.TTLDays
	if ttlDays <= 0 {
		ttlDays = 7
	}
	codeLen := cfg.CodeLength
	if codeLen < 21 {
		codeLen = 21
	}
	return &InvitationService{
		store:    store,
		access:   access,
		projects: projects,
		users:    users,
		notifier: notifier,
		ttl:      time.Duration(ttlDays) * 24 * time.Hour,
		codeLen:  codeLen,
		now:      time.Now,
		log:      logger.Component("invitation"),
	}
}

type CreateInvitationRequest struct {
	UserID  *uint       `json:"user_id"`
	Email   string      `json:"email" binding:"omitempty,email"`
	Phone   string      `json:"phone" binding:"omitempty,phone"`
	Role    models.Role `json:"role" binding:"required,invite_role"`
	Message string      `json:"message" binding:"max=1000"`
}

type CreateInvitationResult struct {
	InvitationID   uint      `json:"invitation_id"`
	InvitationCode string    `json:"invitation_code"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type AcceptResult struct {
	ProjectID   uint        `json:"project_id"`
	ProjectName string      `json:"project_name"`
	Role        models.Role `json:"role"`
}

type InvitationPreview struct {
	ProjectID   uint                    `json:"project_id"`
	ProjectName string                  `json:"project_name"`
	InviterName string                  `json:"inviter_name"`
	Role        models.Role             `json:"role"`
	Message     string                  `json:"message"`
	Status      models.InvitationStatus `json:"status"`
	ExpiresAt   time.Time               `json:"expires_at"`
	CanRespond  bool                    `json:"can_respond"`
}

// invitationTarget is a validated, normalized invitee.
type invitationTarget struct {
	user  *models.User
	email string
	phone string
}

func (t *invitationTarget) slot() string {
	if t.user != nil {
		return userSlot(t.user.ID)
	}
	if t.email != "" {
		return emailSlot(t.email)
	}
	return phoneSlot(t.phone)
}

// aliases lists the other slots that address the same person. Only verified
// contacts of a bound user count, so an unconfirmed account cannot displace an
// invitation meant for the real owner of an address.
func (t *invitationTarget) aliases() []string {
	if t.user == nil {
		return nil
	}
	var out []string
	add := func(slot string) {
		for _, s := range out {
			if s == slot {
				return
			}
		}
		out = append(out, slot)
	}
	if email := t.user.VerifiedEmail(); email != "" {
		add(emailSlot(email))
	}
	if phone := t.user.VerifiedPhone(); phone != "" {
		add(phoneSlot(phone))
	}
	if t.email != "" {
		add(emailSlot(t.email))
	}
	if t.phone != "" {
		add(phoneSlot(t.phone))
	}
	return out
}

func userSlot(id uint) string       { return fmt.Sprintf("user:%d", id) }
func emailSlot(email string) string { return "email:" + email }
func phoneSlot(phone string) string { return "phone:" + phone }

func (s *InvitationService) resolveTarget(req *CreateInvitationRequest) (*invitationTarget, error) {
	supplied := 0
	if req.UserID != nil {
		supplied++
	}
	if req.Email != "" {
		supplied++
	}
	if req.Phone != "" {
		supplied++
	}
	if supplied != 1 {
		return nil, newError(KindInvalidTarget, "exactly one of user_id, email or phone is required")
	}

	target := &invitationTarget{}
	switch {
	case req.UserID != nil:
		user, err := s.users.GetByID(*req.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, newError(KindInvalidTarget, "invited user does not exist")
			}
			return nil, err
		}
		target.user = user

	case req.Email != "":
		target.email = utils.NormalizeEmail(req.Email)
		if target.email == "" {
			return nil, newError(KindInvalidTarget, "invalid email address")
		}
		user, err := s.users.FindByEmail(target.email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if user != nil && user.VerifiedEmail() == target.email {
			target.user = user
		}

	default:
		target.phone = utils.NormalizePhone(req.Phone)
		if target.phone == "" {
			return nil, newError(KindInvalidTarget, "invalid phone number")
		}
		user, err := s.users.FindByPhone(target.phone)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if user != nil && user.VerifiedPhone() == target.phone {
			target.user = user
		}
	}
	return target, nil
}

// Create issues an invitation to join projectID. The inviter must hold the
// invite permission. A pending invitation for the same target is superseded.
func (s *InvitationService) Create(projectID, inviterID uint, req *CreateInvitationRequest) (*CreateInvitationResult, error) {
	project, err := s.projects.Get(projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Require(inviterID, projectID, models.PermInvite); err != nil {
		return nil, err
	}
	if !req.Role.Invitable() {
		return nil, newError(KindInvalidTarget, "role cannot be granted by invitation")
	}

	target, err := s.resolveTarget(req)
	if err != nil {
		return nil, err
	}

	if target.user != nil {
		res, err := s.access.CheckAccess(target.user.ID, projectID)
		if err != nil {
			return nil, err
		}
		if res.HasAccess {
			return nil, newError(KindAlreadyMember, "user is already a member of this project")
		}
	}

	code, err := GenerateInvitationCode(s.codeLen)
	if err != nil {
		return nil, fmt.Errorf("generate invitation code: %w", err)
	}

	now := s.now()
	slot := target.slot()
	inv := &models.TeamInvitation{
		ProjectID:   projectID,
		InviterID:   inviterID,
		Code:        code,
		Role:        req.Role,
		Message:     req.Message,
		Status:      models.InvitationPending,
		PendingSlot: &slot,
		ExpiresAt:   now.Add(s.ttl),
	}
	if target.user != nil {
		inv.InvitedUserID = &target.user.ID
	}
	if target.email != "" {
		inv.InvitedEmail = &target.email
	}
	if target.phone != "" {
		inv.InvitedPhone = &target.phone
	}

	if err := s.store.Put(inv, target.aliases()...); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("project_id", projectID).
		Uint("invitation_id", inv.ID).
		Uint("inviter_id", inviterID).
		Str("role", string(inv.Role)).
		Msg("invitation created")
	LogEvent("info", "invitation", "create", "invitation created", &inviterID, &projectID,
		map[string]interface{}{"invitation_id": inv.ID, "role": inv.Role})

	s.notifyInvitee(project, inv, target)

	return &CreateInvitationResult{
		InvitationID:   inv.ID,
		InvitationCode: inv.Code,
		ExpiresAt:      inv.ExpiresAt,
	}, nil
}

func (s *InvitationService) notifyInvitee(project *models.Project, inv *models.TeamInvitation, target *invitationTarget) {
	if s.notifier == nil {
		return
	}
	if target.user != nil {
		s.notifier.Notify(NotificationEvent{
			UserID:  target.user.ID,
			Type:    models.NotificationTeamInvitation,
			Title:   "Team invitation",
			Message: fmt.Sprintf("You have been invited to join %s as %s", project.Name, inv.Role),
			Data: map[string]interface{}{
				"invitation_id":   inv.ID,
				"invitation_code": inv.Code,
				"project_id":      project.ID,
				"project_name":    project.Name,
				"role":            inv.Role,
				"inviter_id":      inv.InviterID,
			},
		})
		return
	}
	if target.email != "" {
		s.notifier.DeliverInvitationEmail(inv.ID)
		return
	}
	// no account and no email channel: the invitee learns about it out of band
	s.log.Info().Uint("invitation_id", inv.ID).Msg("phone invitee has no delivery channel")
}

// checkTarget reports whether user is the invitee of inv. Email and phone
// invitations only match a contact the user has verified.
func checkTarget(inv *models.TeamInvitation, user *models.User) bool {
	switch {
	case inv.InvitedUserID != nil:
		return *inv.InvitedUserID == user.ID
	case inv.InvitedEmail != nil:
		return *inv.InvitedEmail == user.VerifiedEmail()
	case inv.InvitedPhone != nil:
		return *inv.InvitedPhone == user.VerifiedPhone()
	default:
		return false
	}
}

// targetError explains why user may not respond to inv.
func targetError(inv *models.TeamInvitation, user *models.User) error {
	switch {
	case inv.InvitedUserID == nil && inv.InvitedEmail != nil && *inv.InvitedEmail == user.Email:
		return newError(KindUnauthorized, "verify your email address to respond to this invitation")
	case inv.InvitedUserID == nil && inv.InvitedPhone != nil && user.Phone != nil && *inv.InvitedPhone == *user.Phone:
		return newError(KindUnauthorized, "verify your phone number to respond to this invitation")
	default:
		return newError(KindUnauthorized, "this invitation was sent to someone else")
	}
}

func acceptResult(inv *models.TeamInvitation) *AcceptResult {
	res := &AcceptResult{ProjectID: inv.ProjectID, Role: inv.Role}
	if inv.Project != nil {
		res.ProjectName = inv.Project.Name
	}
	return res
}

// settledOutcome maps an invitation that is no longer pending to the outcome a
// caller acting as userID should see.
func settledOutcome(inv *models.TeamInvitation, userID uint) (*AcceptResult, error) {
	switch inv.Status {
	case models.InvitationAccepted:
		if inv.InvitedUserID != nil && *inv.InvitedUserID == userID {
			return acceptResult(inv), nil
		}
		return nil, newError(KindUnauthorized, "invitation was accepted by another account")
	case models.InvitationDeclined:
		return nil, ErrInvitationDeclined
	default:
		return nil, ErrInvitationExpired
	}
}

func (s *InvitationService) expireIfOverdue(inv *models.TeamInvitation) bool {
	if inv.Status != models.InvitationPending || !inv.IsExpiredAt(s.now()) {
		return false
	}
	if _, err := s.store.Transition(inv.ID, models.InvitationExpired, nil); err != nil {
		s.log.Warn().Err(err).Uint("invitation_id", inv.ID).Msg("failed to mark invitation expired")
	}
	inv.Status = models.InvitationExpired
	return true
}

// Accept redeems an invitation code for userID. Accepting an invitation the
// same user already accepted returns the original outcome.
func (s *InvitationService) Accept(code string, userID uint) (*AcceptResult, error) {
	inv, err := s.store.Get(code)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if inv.Status != models.InvitationPending {
		return settledOutcome(inv, userID)
	}
	if s.expireIfOverdue(inv) {
		return nil, ErrInvitationExpired
	}
	if !checkTarget(inv, user) {
		return nil, targetError(inv, user)
	}

	var accepted *models.Notification
	err = s.store.Transaction(func(tx *InvitationStore) error {
		ok, err := tx.Transition(inv.ID, models.InvitationAccepted, map[string]interface{}{
			"invited_user_id": userID,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		// A membership from another invitation or from project creation wins
		// over a stale invitation that is accepted later.
		current, err := tx.GetMembership(inv.ProjectID, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if current != nil && current.IsActive() &&
			(current.InvitationID == nil || *current.InvitationID != inv.ID) {
			return ErrAlreadyMember
		}

		if _, err := tx.UpsertMembership(MembershipUpsert{
			ProjectID:    inv.ProjectID,
			UserID:       userID,
			Role:         inv.Role,
			Email:        inv.InvitedEmail,
			Phone:        inv.InvitedPhone,
			InvitationID: &inv.ID,
		}); err != nil {
			return err
		}

		if s.notifier != nil {
			accepted = s.notifier.Record(tx.db, NotificationEvent{
				UserID:  inv.InviterID,
				Type:    models.NotificationTeamAccepted,
				Title:   "Invitation accepted",
				Message: fmt.Sprintf("%s joined %s as %s", user.DisplayName(), projectName(inv), inv.Role),
				Data: map[string]interface{}{
					"invitation_id":   inv.ID,
					"invitation_code": inv.Code,
					"project_id":      inv.ProjectID,
					"role":            inv.Role,
					"user_id":         userID,
				},
			})
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyMember) {
		if _, err := s.store.Transition(inv.ID, models.InvitationExpired, nil); err != nil {
			s.log.Warn().Err(err).Uint("invitation_id", inv.ID).Msg("failed to retire invitation of existing member")
		}
		s.log.Info().
			Uint("project_id", inv.ProjectID).
			Uint("invitation_id", inv.ID).
			Uint("user_id", userID).
			Msg("invitation retired, user is already a member")
		return nil, ErrAlreadyMember
	}
	if errors.Is(err, errLostRace) {
		current, err := s.store.Get(code)
		if err != nil {
			return nil, err
		}
		return settledOutcome(current, userID)
	}
	if err != nil {
		s.log.Error().Err(err).Uint("invitation_id", inv.ID).Uint("user_id", userID).Msg("accept failed")
		return nil, storeError(err, ErrNotFound)
	}

	s.access.Invalidate(inv.ProjectID, userID)
	if s.notifier != nil {
		s.notifier.Deliver(accepted)
	}

	s.log.Info().
		Uint("project_id", inv.ProjectID).
		Uint("invitation_id", inv.ID).
		Uint("user_id", userID).
		Msg("invitation accepted")
	LogEvent("info", "invitation", "accept", "invitation accepted", &userID, &inv.ProjectID,
		map[string]interface{}{"invitation_id": inv.ID, "role": inv.Role})

	inv.InvitedUserID = &userID
	return acceptResult(inv), nil
}

// Decline rejects an invitation. Declining twice is a no-op.
func (s *InvitationService) Decline(code string, userID uint) error {
	inv, err := s.store.Get(code)
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if !checkTarget(inv, user) {
		return targetError(inv, user)
	}

	if inv.Status != models.InvitationPending {
		return declineOutcome(inv)
	}
	if s.expireIfOverdue(inv) {
		return ErrInvitationExpired
	}

	ok, err := s.store.Transition(inv.ID, models.InvitationDeclined, map[string]interface{}{
		"invited_user_id": userID,
	})
	if err != nil {
		return err
	}
	if !ok {
		current, err := s.store.Get(code)
		if err != nil {
			return err
		}
		return declineOutcome(current)
	}

	if s.notifier != nil {
		s.notifier.Notify(NotificationEvent{
			UserID:  inv.InviterID,
			Type:    models.NotificationGeneric,
			Title:   "Invitation declined",
			Message: fmt.Sprintf("%s declined your invitation to %s", user.DisplayName(), projectName(inv)),
			Data: map[string]interface{}{
				"action":          "declined",
				"invitation_id":   inv.ID,
				"invitation_code": inv.Code,
				"project_id":      inv.ProjectID,
				"user_id":         userID,
			},
		})
	}

	LogEvent("info", "invitation", "decline", "invitation declined", &userID, &inv.ProjectID,
		map[string]interface{}{"invitation_id": inv.ID})
	return nil
}

func declineOutcome(inv *models.TeamInvitation) error {
	switch inv.Status {
	case models.InvitationDeclined:
		return nil
	case models.InvitationAccepted:
		return ErrAlreadyMember
	default:
		return ErrInvitationExpired
	}
}

func projectName(inv *models.TeamInvitation) string {
	if inv.Project != nil {
		return inv.Project.Name
	}
	return fmt.Sprintf("project #%d", inv.ProjectID)
}

// Preview describes an invitation to anyone holding its code.
func (s *InvitationService) Preview(code string, userID uint) (*InvitationPreview, error) {
	inv, err := s.store.Get(code)
	if err != nil {
		return nil, err
	}
	s.expireIfOverdue(inv)

	preview := &InvitationPreview{
		ProjectID:   inv.ProjectID,
		ProjectName: projectName(inv),
		Role:        inv.Role,
		Message:     inv.Message,
		Status:      inv.Status,
		ExpiresAt:   inv.ExpiresAt,
	}
	if inv.Inviter != nil {
		preview.InviterName = inv.Inviter.DisplayName()
	}
	if inv.Status == models.InvitationPending {
		if user, err := s.users.GetByID(userID); err == nil {
			preview.CanRespond = checkTarget(inv, user)
		}
	}
	return preview, nil
}

// ListPendingForUser returns the live invitations addressed to userID or to
// one of the user's verified contacts.
func (s *InvitationService) ListPendingForUser(userID uint) ([]models.TeamInvitation, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListPendingForUser(user.ID, user.VerifiedEmail(), user.VerifiedPhone())
}

// ListForProject lists a project's invitations for someone allowed to invite.
func (s *InvitationService) ListForProject(actorID, projectID uint, status models.InvitationStatus) ([]models.TeamInvitation, error) {
	if status != "" && !status.IsValid() {
		return nil, newError(KindInvalidTarget, "invalid invitation status")
	}
	if _, err := s.access.Require(actorID, projectID, models.PermInvite); err != nil {
		return nil, err
	}
	return s.store.ListForProject(projectID, status)
}

// Revoke withdraws a pending invitation. Revoking an already expired one is a no-op.
func (s *InvitationService) Revoke(actorID, projectID, invitationID uint) error {
	if _, err := s.access.Require(actorID, projectID, models.PermInvite); err != nil {
		return err
	}
	inv, err := s.store.GetByID(projectID, invitationID)
	if err != nil {
		return err
	}

	if inv.Status == models.InvitationPending {
		ok, err := s.store.Transition(inv.ID, models.InvitationExpired, nil)
		if err != nil {
			return err
		}
		if ok {
			LogEvent("info", "invitation", "revoke", "invitation revoked", &actorID, &projectID,
				map[string]interface{}{"invitation_id": inv.ID})
			return nil
		}
		if inv, err = s.store.GetByID(projectID, invitationID); err != nil {
			return err
		}
	}

	switch inv.Status {
	case models.InvitationAccepted:
		return ErrAlreadyMember
	case models.InvitationDeclined:
		return ErrInvitationDeclined
	default:
		return nil
	}
}
