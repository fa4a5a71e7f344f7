package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// AccessResult answers whether a user may act on a project and how.
type AccessResult struct {
	HasAccess   bool                `json:"has_access"`
	Role        models.Role         `json:"role,omitempty"`
	IsOwner     bool                `json:"is_owner"`
	Permissions []models.Permission `json:"permissions"`
}

// Can reports whether the result grants the permission.
func (r *AccessResult) Can(p models.Permission) bool {
	if r == nil || !r.HasAccess {
		return false
	}
	for _, perm := range r.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// AccessService is the single authority on project access. Every mutating
// operation calls it before touching state.
type AccessService struct {
	db    *gorm.DB
	cache AccessCache
	gens  *generations
	log   zerolog.Logger
}

// NewAccessService creates the service. cache may be nil to disable caching.
func NewAccessService(db *gorm.DB, cache AccessCache) *AccessService {
	return &AccessService{
		db:    db,
		cache: cache,
		gens:  &generations{byProject: make(map[uint]uint64)},
		log:   logger.Component("access"),
	}
}

// generations counts invalidations per project. A lookup fills the cache only
// if no invalidation of its project happened while it read the database, so a
// decision read before a membership change commits is never cached after it.
// The guard is per process: with a shared redis cache another instance can
// still write a decision it read before the change, bounded by the cache TTL.
type generations struct {
	mu        sync.Mutex
	byProject map[uint]uint64
}

func (g *generations) current(projectID uint) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byProject[projectID]
}

// WithTx returns a copy that reads through tx and bypasses the cache, so a
// check inside a transaction sees that transaction's writes.
func (s *AccessService) WithTx(tx *gorm.DB) *AccessService {
	return &AccessService{db: tx, log: s.log}
}

// CheckAccess resolves the access of userID on projectID. Access is granted by
// an active membership or by being the project's creator.
func (s *AccessService) CheckAccess(userID, projectID uint) (*AccessResult, error) {
	var gen uint64
	if s.cache != nil {
		if res, ok := s.cache.Get(projectID, userID); ok {
			return res, nil
		}
		gen = s.gens.current(projectID)
	}

	var project models.Project
	if err := s.db.Select("id", "created_by").First(&project, projectID).Error; err != nil {
		return nil, storeError(err, ErrProjectNotFound)
	}

	res := &AccessResult{Permissions: []models.Permission{}}

	var membership models.ProjectMembership
	err := s.db.Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, models.MembershipActive).
		First(&membership).Error
	switch {
	case err == nil:
		res.HasAccess = true
		res.Role = membership.Role
		res.Permissions = append(res.Permissions, membership.Permissions...)
		res.IsOwner = membership.Role == models.RoleOwner
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, storeError(err, ErrNotFound)
	}

	if project.CreatedBy == userID {
		res.HasAccess = true
		res.IsOwner = true
		res.Role = models.RoleOwner
		res.Permissions = models.RoleOwner.Permissions()
	}

	if s.cache != nil {
		s.gens.mu.Lock()
		if s.gens.byProject[projectID] == gen {
			s.cache.Set(projectID, userID, res)
		} else {
			s.log.Debug().Uint("project_id", projectID).Uint("user_id", userID).Msg("access changed during lookup, not caching")
		}
		s.gens.mu.Unlock()
	}
	return res, nil
}

// Require fails with ErrUnauthorized unless userID holds perm on projectID.
func (s *AccessService) Require(userID, projectID uint, perm models.Permission) (*AccessResult, error) {
	res, err := s.CheckAccess(userID, projectID)
	if err != nil {
		return nil, err
	}
	if !res.Can(perm) {
		return res, &Error{Kind: KindUnauthorized, Message: fmt.Sprintf("missing %s permission on this project", perm)}
	}
	return res, nil
}

// Invalidate drops the cached decision for (projectID, userID).
func (s *AccessService) Invalidate(projectID, userID uint) {
	if s.cache == nil {
		return
	}
	s.gens.mu.Lock()
	defer s.gens.mu.Unlock()
	s.gens.byProject[projectID]++
	s.cache.Invalidate(projectID, userID)
}

// InvalidateProject drops every cached decision for projectID.
func (s *AccessService) InvalidateProject(projectID uint) {
	if s.cache == nil {
		return
	}
	s.gens.mu.Lock()
	defer s.gens.mu.Unlock()
	s.gens.byProject[projectID]++
	s.cache.InvalidateProject(projectID)
}

// CacheStats reports hit/miss counters of the underlying cache.
func (s *AccessService) CacheStats() CacheStats {
	if s.cache == nil {
		return CacheStats{Driver: "disabled"}
	}
	return s.cache.Stats()
}
