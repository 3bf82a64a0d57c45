package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/repository"
	"github.com/smartqueue/smartqueue-api/pkg/logger"
	"github.com/smartqueue/smartqueue-api/pkg/messaging"
)

const (
	cacheKey        = "settings"
	cacheTTL        = 5 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// Service serves the clinic settings. The row is read on every enroll and
// retire, so it sits behind a small TTL cache invalidated by change
// notifications.
type Service struct {
	repo   repository.SettingsRepository
	broker messaging.Broker
	cache  *gocache.Cache
	logger *logger.Logger
}

func NewService(repo repository.SettingsRepository, broker messaging.Broker, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		broker: broker,
		cache:  gocache.New(cacheTTL, cleanupInterval),
		logger: logger,
	}
}

func (s *Service) Get(ctx context.Context) (*model.Settings, error) {
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*model.Settings), nil
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, settings, gocache.DefaultExpiration)
	return settings, nil
}

// ConsultationMinutes implements queue.SettingsProvider.
func (s *Service) ConsultationMinutes(ctx context.Context) (int, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	if settings.AverageConsultationTime <= 0 {
		return model.DefaultConsultationMinutes, nil
	}
	return settings.AverageConsultationTime, nil
}

// Update persists the settings, drops the cache and notifies subscribers
// so dashboards re-read the new consultation time.
func (s *Service) Update(ctx context.Context, settings *model.Settings) error {
	if settings.AverageConsultationTime <= 0 {
		return fmt.Errorf("average consultation time must be positive")
	}

	if err := s.repo.Update(ctx, settings); err != nil {
		return err
	}
	s.cache.Delete(cacheKey)

	if err := s.broker.Publish(ctx, messaging.QueueChannel, messaging.Event{Type: model.EventSettingsUpdate}); err != nil {
		s.logger.Error(err, "failed to publish settings update")
	}
	return nil
}

// StartInvalidation drops the cached settings whenever another instance
// publishes a settings change.
func (s *Service) StartInvalidation(ctx context.Context) error {
	return messaging.SubscribeFunc(ctx, s.broker, messaging.QueueChannel, func(payload []byte) error {
		var event messaging.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil
		}
		if event.Type == model.EventSettingsUpdate {
			s.cache.Delete(cacheKey)
		}
		return nil
	})
}
