package models

// Role is a member's standing on a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}

// Invitable reports whether the role can be granted through an invitation.
// Ownership is never delegated that way.
func (r Role) Invitable() bool {
	return r == RoleAdmin || r == RoleMember || r == RoleViewer
}

// CanInvite reports whether holders of the role may issue invitations.
func (r Role) CanInvite() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Permissions returns the capability set derived from the role.
func (r Role) Permissions() []Permission {
	switch r {
	case RoleOwner, RoleAdmin:
		return []Permission{PermRead, PermWrite, PermDelete, PermInvite, PermManageMembers, PermAccessChat}
	case RoleMember:
		return []Permission{PermRead, PermWrite, PermAccessChat}
	case RoleViewer:
		return []Permission{PermRead, PermAccessChat}
	default:
		return nil
	}
}

// Has reports whether the role grants the given permission.
func (r Role) Has(p Permission) bool {
	for _, perm := range r.Permissions() {
		if perm == p {
			return true
		}
	}
	return false
}

// Permission is a single capability on a project.
type Permission string

const (
	PermRead          Permission = "read"
	PermWrite         Permission = "write"
	PermDelete        Permission = "delete"
	PermInvite        Permission = "invite"
	PermManageMembers Permission = "manage_members"
	PermAccessChat    Permission = "access_chat"
)

// MembershipStatus is the state of a ProjectMembership row.
// Only active memberships grant access; declined marks a membership that ended.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipDeclined MembershipStatus = "declined"
)

func (s MembershipStatus) IsValid() bool {
	return s == MembershipActive || s == MembershipDeclined
}

// InvitationStatus is the state of a TeamInvitation row.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

func (s InvitationStatus) IsValid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationDeclined, InvitationExpired:
		return true
	default:
		return false
	}
}

// NotificationType categorizes in-app notifications.
type NotificationType string

const (
	NotificationTeamInvitation NotificationType = "team_invitation"
	NotificationTeamAccepted   NotificationType = "team_accepted"
	NotificationTeamRemoved    NotificationType = "team_removed"
	NotificationRoleChanged    NotificationType = "role_changed"
	NotificationGeneric        NotificationType = "generic"
)

// Rank orders roles from most to least privileged.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 0
	case RoleAdmin:
		return 1
	case RoleMember:
		return 2
	case RoleViewer:
		return 3
	default:
		return 4
	}
}
