package services

import (
	"strings"

	"github.com/huangang/teamhub/internal/models"
	"gorm.io/gorm"
)

// ProjectRepository is the view of projects the invitation core depends on.
type ProjectRepository interface {
	Exists(id uint) (bool, error)
	Owner(id uint) (uint, error)
	Get(id uint) (*models.Project, error)
}

type ProjectService struct {
	db     *gorm.DB
	store  *InvitationStore
	access *AccessService
}

func NewProjectService(db *gorm.DB, store *InvitationStore, access *AccessService) *ProjectService {
	return &ProjectService{db: db, store: store, access: access}
}

type ProjectListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name     string `form:"name"`
}

// ProjectWithRole is a project as seen by one of its members.
type ProjectWithRole struct {
	models.Project
	Role models.Role `json:"role"`
}

type ProjectListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []ProjectWithRole `json:"items"`
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description"`
}

type UpdateProjectRequest struct {
	Name        string  `json:"name" binding:"omitempty,max=200"`
	Description *string `json:"description"`
}

func (s *ProjectService) Get(id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		return nil, storeError(err, ErrProjectNotFound)
	}
	return &project, nil
}

func (s *ProjectService) Exists(id uint) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Project{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, storeError(err, ErrProjectNotFound)
	}
	return count > 0, nil
}

func (s *ProjectService) Owner(id uint) (uint, error) {
	project, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return project.CreatedBy, nil
}

// Create inserts the project together with its single owner membership.
func (s *ProjectService) Create(req *CreateProjectRequest, userID uint) (*models.Project, error) {
	project := models.Project{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedBy:   userID,
	}
	if project.Name == "" {
		return nil, newError(KindInvalidTarget, "project name is required")
	}

	err := s.store.Transaction(func(tx *InvitationStore) error {
		if err := tx.db.Create(&project).Error; err != nil {
			return err
		}
		_, err := tx.UpsertMembership(MembershipUpsert{
			ProjectID: project.ID,
			UserID:    userID,
			Role:      models.RoleOwner,
		})
		return err
	})
	if err != nil {
		return nil, storeError(err, ErrProjectNotFound)
	}

	s.access.Invalidate(project.ID, userID)
	return &project, nil
}

// ListForUser returns the projects the user can access, newest first.
func (s *ProjectService) ListForUser(userID uint, req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	memberOf := s.db.Model(&models.ProjectMembership{}).
		Select("project_id").
		Where("user_id = ? AND status = ?", userID, models.MembershipActive)

	query := s.db.Model(&models.Project{}).
		Where(s.db.Where("created_by = ?", userID).Or("id IN (?)", memberOf))
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, storeError(err, ErrNotFound)
	}

	var projects []models.Project
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&projects).Error; err != nil {
		return nil, storeError(err, ErrNotFound)
	}

	roles := make(map[uint]models.Role, len(projects))
	if len(projects) > 0 {
		ids := make([]uint, len(projects))
		for i, p := range projects {
			ids[i] = p.ID
		}
		var memberships []models.ProjectMembership
		if err := s.db.Select("project_id", "role").
			Where("user_id = ? AND status = ? AND project_id IN ?", userID, models.MembershipActive, ids).
			Find(&memberships).Error; err != nil {
			return nil, storeError(err, ErrNotFound)
		}
		for _, m := range memberships {
			roles[m.ProjectID] = m.Role
		}
	}

	items := make([]ProjectWithRole, len(projects))
	for i, p := range projects {
		role := roles[p.ID]
		if p.CreatedBy == userID {
			role = models.RoleOwner
		}
		items[i] = ProjectWithRole{Project: p, Role: role}
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// Update changes project details. The actor needs write permission.
func (s *ProjectService) Update(actorID, id uint, req *UpdateProjectRequest) (*models.Project, error) {
	if _, err := s.access.Require(actorID, id, models.PermWrite); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) > 0 {
		if err := s.db.Model(&models.Project{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, storeError(err, ErrProjectNotFound)
		}
	}
	return s.Get(id)
}

// Delete removes a project with its memberships and invitations. Only the
// owner may delete.
func (s *ProjectService) Delete(actorID, id uint) error {
	access, err := s.access.CheckAccess(actorID, id)
	if err != nil {
		return err
	}
	if !access.IsOwner {
		return newError(KindUnauthorized, "only the project owner can delete the project")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.TeamInvitation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Project{}, id).Error
	})
	if err != nil {
		return storeError(err, ErrProjectNotFound)
	}

	s.access.InvalidateProject(id)
	return nil
}
