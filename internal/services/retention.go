package services

import (
	"errors"
	"os"
	"time"

	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const retentionLockName = "retention_cleanup"

// RetentionService prunes old audit logs and read notifications on a cron
// schedule. Invitations are never touched: their expiry is evaluated lazily.
type RetentionService struct {
	db            *gorm.DB
	cfg           config.RetentionConfig
	systemLogs    *SystemLogService
	notifications *NotificationService
	cronScheduler *cron.Cron
	instance      string
	now           func() time.Time
	log           zerolog.Logger
}

func NewRetentionService(db *gorm.DB, cfg *config.RetentionConfig, notifications *NotificationService) *RetentionService {
	instance, _ := os.Hostname()
	if instance == "" {
		instance = "teamhub"
	}
	return &RetentionService{
		db:            db,
		cfg:           *cfg,
		systemLogs:    NewSystemLogService(db),
		notifications: notifications,
		instance:      instance,
		now:           time.Now,
		log:           logger.Component("retention"),
	}
}

// StartScheduler registers the cleanup job and starts the cron runner.
func (s *RetentionService) StartScheduler() error {
	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(s.cfg.CleanupCron, s.runScheduled); err != nil {
		return err
	}
	s.cronScheduler.Start()
	s.log.Info().Str("cron", s.cfg.CleanupCron).Msg("retention cleanup scheduled")
	return nil
}

// StopScheduler waits for a running cleanup to finish.
func (s *RetentionService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

func (s *RetentionService) runScheduled() {
	key := s.now().UTC().Format("2006-01-02T15")
	acquired, err := s.acquireLock(key, time.Hour)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to acquire retention lock")
		return
	}
	if !acquired {
		s.log.Debug().Str("key", key).Msg("retention cleanup already claimed by another instance")
		return
	}
	if _, err := s.RunCleanup(); err != nil {
		s.log.Error().Err(err).Msg("retention cleanup failed")
	}
}

// acquireLock claims (name, key) for this instance. Only one replica can hold
// a given key; stale locks past their expiry are removed first.
func (s *RetentionService) acquireLock(key string, ttl time.Duration) (bool, error) {
	now := s.now()
	if err := s.db.Where("lock_name = ? AND expires_at < ?", retentionLockName, now).
		Delete(&models.SchedulerLock{}).Error; err != nil {
		return false, err
	}

	lock := models.SchedulerLock{
		LockName:  retentionLockName,
		LockKey:   key,
		LockedBy:  s.instance,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.db.Create(&lock).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type CleanupResult struct {
	SystemLogs    int64 `json:"system_logs"`
	Notifications int64 `json:"notifications"`
}

// RunCleanup deletes expired audit rows and read notifications now.
func (s *RetentionService) RunCleanup() (*CleanupResult, error) {
	result := &CleanupResult{}

	deleted, err := s.systemLogs.CleanupOldLogs(s.cfg.SystemLogDays)
	if err != nil {
		return nil, err
	}
	result.SystemLogs = deleted

	if s.notifications != nil {
		deleted, err = s.notifications.CleanupRead(s.cfg.ReadNotificationDays)
		if err != nil {
			return result, err
		}
		result.Notifications = deleted
	}

	s.log.Info().
		Int64("system_logs", result.SystemLogs).
		Int64("notifications", result.Notifications).
		Msg("retention cleanup finished")
	return result, nil
}
