package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"verify-service/internal/audit"
	"verify-service/internal/bucketing"
	"verify-service/internal/client"
	"verify-service/internal/config"
	"verify-service/internal/encryption"
	"verify-service/internal/handler"
	"verify-service/internal/hashing"
	"verify-service/internal/identity"
	"verify-service/internal/model"
	redisrepo "verify-service/internal/repository/redis"
	"verify-service/internal/repository/scylla"
	"verify-service/internal/service"
	"verify-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	smsClient        *client.SMSClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Repositories and collaborators
	sessionRepository model.SessionRepository
	accountRepository model.AccountRepository
	issuanceLock      model.IssuanceLock
	identityProvider  identity.Provider
	recorder          *audit.Recorder
	events            *service.EventPublisher
	serviceFactory    *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch
	if esClient, err := client.NewElasticsearchClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		if err := f.esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	// SMS gateway
	f.smsClient = client.NewSMSClient(f.config)

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config, falling back to local encryption key",
				util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	f.encryptionManager = encryption.NewManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewManager(0)

	util.Info("Managers initialized successfully",
		util.Bool("hashing_initialized", f.hasher != nil),
		util.Bool("encryption_initialized", f.encryptionManager != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) SessionRepository() model.SessionRepository {
	if f.sessionRepository == nil {
		f.sessionRepository = scylla.NewSessionRepository(f.scyllaClient, f.config.OTC.RateLimitWindow)
	}
	return f.sessionRepository
}

func (f *Factory) AccountRepository() model.AccountRepository {
	if f.accountRepository == nil {
		f.accountRepository = scylla.NewAccountRepository(f.scyllaClient)
	}
	return f.accountRepository
}

func (f *Factory) IssuanceLock() model.IssuanceLock {
	if f.issuanceLock == nil {
		f.issuanceLock = redisrepo.NewIssuanceLock(f.redisClient)
	}
	return f.issuanceLock
}

// ==============================
// Collaborators
// ==============================

func (f *Factory) IdentityProvider() identity.Provider {
	if f.identityProvider == nil {
		f.identityProvider = identity.NewAccountProvider(
			f.AccountRepository(),
			f.encryptionManager,
			f.bucketingManager,
			f.config,
		)
	}
	return f.identityProvider
}

func (f *Factory) AuditRecorder() *audit.Recorder {
	if f.recorder == nil {
		f.recorder = audit.NewRecorder(f.esClient, f.clickhouseClient, f.config)
	}
	return f.recorder
}

func (f *Factory) EventPublisher() *service.EventPublisher {
	if f.events == nil {
		f.events = service.NewEventPublisher(f.kafkaProducer, f.config)
	}
	return f.events
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.SessionRepository(),
			f.IssuanceLock(),
			f.smsClient,
			f.IdentityProvider(),
			f.hasher,
			f.AuditRecorder(),
			f.EventPublisher(),
			f.config,
		)
	}
	return f.serviceFactory
}

// OTCHandler builds the HTTP handler wired to the OTC service, with the
// factory itself serving readiness checks.
func (f *Factory) OTCHandler() *handler.OTCHandler {
	return handler.NewOTCHandler(f.ServiceFactory().OTCService(), f, util.Get())
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		healthErrors["redis"] = f.redisClient.HealthCheck(ctx)
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		healthErrors["scylla"] = f.scyllaClient.HealthCheck(ctx)
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.esClient != nil {
		healthErrors["elasticsearch"] = f.esClient.HealthCheck()
	} else {
		healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
	}

	if f.clickhouseClient != nil {
		healthErrors["clickhouse"] = f.clickhouseClient.HealthCheck(ctx)
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.kafkaProducer != nil {
		healthErrors["kafka"] = f.kafkaProducer.HealthCheck(ctx)
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	for name, err := range f.HealthCheck(ctx) {
		if name == "kafka" {
			continue
		}
		if err != nil {
			return false
		}
	}
	return true
}

// ==============================
// Shutdown
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}
