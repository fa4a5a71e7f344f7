package services

import (
	"errors"
	"fmt"

	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/rs/zerolog"
)

// MemberService manages existing memberships: listing, role changes and removal.
type MemberService struct {
	store    *InvitationStore
	access   *AccessService
	projects ProjectRepository
	notifier *NotificationService
	log      zerolog.Logger
}

func NewMemberService(store *InvitationStore, access *AccessService, projects ProjectRepository, notifier *NotificationService) *MemberService {
	return &MemberService{
		store:    store,
		access:   access,
		projects: projects,
		notifier: notifier,
		log:      logger.Component("member"),
	}
}

type UpdateMemberRoleRequest struct {
	Role models.Role `json:"role" binding:"required,invite_role"`
}

// List returns the active members of a project to anyone who can read it.
func (s *MemberService) List(actorID, projectID uint) ([]models.ProjectMembership, error) {
	if _, err := s.access.Require(actorID, projectID, models.PermRead); err != nil {
		return nil, err
	}
	return s.store.ListMembers(projectID)
}

// authorize checks that actorID may manage targetID's membership and returns
// the target's current membership.
func (s *MemberService) authorize(actorID, projectID, targetID uint) (*AccessResult, *models.ProjectMembership, error) {
	actor, err := s.access.Require(actorID, projectID, models.PermManageMembers)
	if err != nil {
		return nil, nil, err
	}
	if actorID == targetID {
		return nil, nil, newError(KindUnauthorized, "you cannot manage your own membership")
	}

	target, err := s.store.GetMembership(projectID, targetID)
	if err != nil {
		return nil, nil, err
	}
	if !target.IsActive() {
		return nil, nil, newError(KindNotFound, "membership not found")
	}
	if target.Role == models.RoleOwner {
		return nil, nil, newError(KindUnauthorized, "the project owner cannot be changed")
	}
	if owner, err := s.projects.Owner(projectID); err == nil && owner == targetID {
		return nil, nil, newError(KindUnauthorized, "the project owner cannot be changed")
	}
	if target.Role == models.RoleAdmin && !actor.IsOwner {
		return nil, nil, newError(KindUnauthorized, "only the owner can manage admins")
	}
	return actor, target, nil
}

// UpdateRole changes a member's role and notifies them.
func (s *MemberService) UpdateRole(actorID, projectID, targetID uint, role models.Role) (*models.ProjectMembership, error) {
	if !role.Invitable() {
		return nil, newError(KindInvalidTarget, "role must be admin, member or viewer")
	}
	actor, target, err := s.authorize(actorID, projectID, targetID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleAdmin && !actor.IsOwner {
		return nil, newError(KindUnauthorized, "only the owner can grant admin")
	}
	if target.Role == role {
		return target, nil
	}

	if err := s.store.SetMemberRole(projectID, targetID, role); err != nil {
		return nil, err
	}
	s.access.Invalidate(projectID, targetID)

	s.notify(projectID, targetID, models.NotificationRoleChanged, "Role changed",
		func(name string) string { return fmt.Sprintf("Your role in %s is now %s", name, role) },
		map[string]interface{}{"old_role": target.Role, "role": role})
	LogEvent("info", "member", "update_role", "member role changed", &actorID, &projectID,
		map[string]interface{}{"user_id": targetID, "old_role": target.Role, "role": role})

	return s.store.GetMembership(projectID, targetID)
}

// Remove ends a member's membership and notifies them.
func (s *MemberService) Remove(actorID, projectID, targetID uint) error {
	if _, _, err := s.authorize(actorID, projectID, targetID); err != nil {
		return err
	}
	if err := s.store.EndMembership(projectID, targetID); err != nil {
		return err
	}
	s.access.Invalidate(projectID, targetID)

	s.notify(projectID, targetID, models.NotificationTeamRemoved, "Removed from project",
		func(name string) string { return fmt.Sprintf("You have been removed from %s", name) },
		nil)
	LogEvent("info", "member", "remove", "member removed", &actorID, &projectID,
		map[string]interface{}{"user_id": targetID})
	return nil
}

// Leave ends the caller's own membership. The owner cannot leave.
func (s *MemberService) Leave(userID, projectID uint) error {
	access, err := s.access.CheckAccess(userID, projectID)
	if err != nil {
		return err
	}
	if access.IsOwner {
		return newError(KindUnauthorized, "the owner cannot leave the project")
	}
	if err := s.store.EndMembership(projectID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(KindNotFound, "you are not a member of this project")
		}
		return err
	}
	s.access.Invalidate(projectID, userID)

	if owner, err := s.projects.Owner(projectID); err == nil {
		s.notify(projectID, owner, models.NotificationGeneric, "Member left",
			func(name string) string { return fmt.Sprintf("A member left %s", name) },
			map[string]interface{}{"action": "left", "user_id": userID})
	}
	LogEvent("info", "member", "leave", "member left", &userID, &projectID, nil)
	return nil
}

func (s *MemberService) notify(projectID, userID uint, typ models.NotificationType, title string, message func(string) string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	name := fmt.Sprintf("project #%d", projectID)
	if project, err := s.projects.Get(projectID); err == nil {
		name = project.Name
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["project_id"] = projectID
	data["project_name"] = name

	s.notifier.Notify(NotificationEvent{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message(name),
		Data:    data,
	})
}
