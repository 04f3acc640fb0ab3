package service

import (
	"verify-service/internal/audit"
	"verify-service/internal/config"
	"verify-service/internal/hashing"
	"verify-service/internal/identity"
	"verify-service/internal/model"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	sessions   model.SessionRepository
	lock       model.IssuanceLock
	dispatcher Dispatcher
	identity   identity.Provider
	hasher     *hashing.Hasher
	recorder   *audit.Recorder
	events     *EventPublisher
	config     *config.Config

	rateLimiter *RateLimiter
	otcService  *OTCService
}

func NewServiceFactory(
	sessions model.SessionRepository,
	lock model.IssuanceLock,
	dispatcher Dispatcher,
	identityProvider identity.Provider,
	hasher *hashing.Hasher,
	recorder *audit.Recorder,
	events *EventPublisher,
	cfg *config.Config,
) *ServiceFactory {
	return &ServiceFactory{
		sessions:   sessions,
		lock:       lock,
		dispatcher: dispatcher,
		identity:   identityProvider,
		hasher:     hasher,
		recorder:   recorder,
		events:     events,
		config:     cfg,
	}
}

// RateLimiter returns the rate limiter instance (singleton)
func (f *ServiceFactory) RateLimiter() *RateLimiter {
	if f.rateLimiter == nil {
		f.rateLimiter = NewRateLimiter(f.sessions, f.config.OTC.RateLimitWindow, f.config.OTC.RateLimitMax)
	}
	return f.rateLimiter
}

// OTCService returns the one-time-code service instance (singleton)
func (f *ServiceFactory) OTCService() *OTCService {
	if f.otcService == nil {
		f.otcService = NewOTCService(
			f.sessions,
			f.lock,
			f.RateLimiter(),
			f.dispatcher,
			f.identity,
			f.hasher,
			f.recorder,
			f.events,
			f.config,
		)
	}
	return f.otcService
}
