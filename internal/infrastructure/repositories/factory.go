package repositories

import (
	"context"
	"fmt"

	"watchparty/internal/core/ports"
	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/distributed"
	"watchparty/internal/infrastructure/reliability"
	"watchparty/internal/infrastructure/repositories/changefeed"
	"watchparty/internal/infrastructure/repositories/memory"
	pgrepo "watchparty/internal/infrastructure/repositories/postgres"
	redisrepo "watchparty/internal/infrastructure/repositories/redis"
	"watchparty/pkg/circuitbreaker"
	"watchparty/pkg/config"
	"watchparty/pkg/retry"
	"watchparty/pkg/utils"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory owns the storage and transport connections of one instance and
// builds the repositories on top of them.
type Factory struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	backend     string
	redisClient *redis.Client
	pgPool      *pgxpool.Pool

	transport ports.ChannelTransport
	profiles  *services.CachedProfileProvider
}

// NewFactory connects the configured backends. A Redis outage degrades to the
// in-memory backends the same way for storage and transport; Postgres does not
// degrade.
func NewFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	f := &Factory{
		cfg:     cfg,
		logger:  logger,
		backend: cfg.Storage.Backend,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory backends",
				"error", err,
			)
		} else {
			f.redisClient = client
		}
	}

	if f.backend == config.StorageRedis && f.redisClient == nil {
		f.backend = config.StorageMemory
	}

	if f.backend == config.StoragePostgres {
		pool, err := pgrepo.NewPostgresPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, logger)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		f.pgPool = pool
		if cfg.Postgres.Migrate {
			if err := pgrepo.Migrate(ctx, pool, logger); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
			}
		}
	}

	f.transport = f.newTransport()
	f.profiles = services.NewCachedProfileProvider(f.newProfileProvider(), cfg.Profiles.CacheTTL)

	logger.Infow("storage ready",
		"storage", f.backend,
		"transport", cfg.Transport.Backend,
	)
	return f, nil
}

func (f *Factory) newTransport() ports.ChannelTransport {
	if f.cfg.Transport.Backend == config.TransportRedis && f.redisClient != nil {
		instanceID := f.cfg.Transport.InstanceID
		if instanceID == "" {
			instanceID = utils.GenerateInstanceID()
		}
		return distributed.NewEventBus(f.redisClient, instanceID, f.logger)
	}
	if f.cfg.Transport.Backend == config.TransportRedis {
		f.logger.Warn("Redis transport unavailable, parties will not span instances")
	}
	return distributed.NewLocalBus(f.cfg.Transport.QueueSize, f.logger)
}

func (f *Factory) newProfileProvider() ports.ProfileProvider {
	var base ports.ProfileProvider
	switch {
	case f.backend == config.StoragePostgres:
		base = pgrepo.NewPostgresProfileProvider(f.pgPool)
	case f.redisClient != nil:
		base = redisrepo.NewRedisProfileProvider(f.redisClient)
	default:
		return memory.NewMemoryProfileProvider()
	}

	retryCfg := retry.Config{
		MaxAttempts:  f.cfg.Profiles.Retry.MaxAttempts,
		InitialDelay: f.cfg.Profiles.Retry.InitialDelay,
		MaxDelay:     f.cfg.Profiles.Retry.MaxDelay,
		Multiplier:   2,
		Jitter:       true,
	}
	cbCfg := circuitbreaker.DefaultConfig("profiles")
	cbCfg.FailureThreshold = f.cfg.Profiles.CircuitBreaker.FailureThreshold
	cbCfg.SuccessThreshold = f.cfg.Profiles.CircuitBreaker.SuccessThreshold
	cbCfg.Timeout = f.cfg.Profiles.CircuitBreaker.Timeout

	return reliability.NewProfileProviderWrapper(base, retryCfg, cbCfg, f.logger)
}

func (f *Factory) Backend() string {
	return f.backend
}

func (f *Factory) Transport() ports.ChannelTransport {
	return f.transport
}

func (f *Factory) ProfileProvider() ports.ProfileProvider {
	return f.profiles
}

func (f *Factory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *Factory) PostgresPool() *pgxpool.Pool {
	return f.pgPool
}

// CreatePartyRepository returns the party store; its writes are announced on
// the transport.
func (f *Factory) CreatePartyRepository() ports.PartyRepository {
	var base ports.PartyRepository
	switch f.backend {
	case config.StoragePostgres:
		base = pgrepo.NewPostgresPartyRepository(f.pgPool)
	case config.StorageRedis:
		base = redisrepo.NewRedisPartyRepository(f.redisClient)
	default:
		base = memory.NewMemoryPartyRepository()
	}
	return changefeed.NewPartyRepository(base, f.transport, f.logger)
}

func (f *Factory) CreateParticipantRepository() ports.ParticipantRepository {
	var base ports.ParticipantRepository
	switch f.backend {
	case config.StoragePostgres:
		base = pgrepo.NewPostgresParticipantRepository(f.pgPool)
	case config.StorageRedis:
		base = redisrepo.NewRedisParticipantRepository(f.redisClient)
	default:
		base = memory.NewMemoryParticipantRepository()
	}
	return changefeed.NewParticipantRepository(base, f.transport, f.logger)
}

func (f *Factory) CreateChatRepository() ports.ChatRepository {
	var base ports.ChatRepository
	switch f.backend {
	case config.StoragePostgres:
		base = pgrepo.NewPostgresChatRepository(f.pgPool)
	case config.StorageRedis:
		base = redisrepo.NewRedisChatRepository(f.redisClient)
	default:
		base = memory.NewMemoryChatRepository()
	}
	return changefeed.NewChatRepository(base, f.transport, f.logger)
}

// HealthCheck pings every connected backend.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if f.pgPool != nil {
		if err := f.pgPool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func (f *Factory) Close() error {
	if f.transport != nil {
		if err := f.transport.Close(); err != nil {
			f.logger.Warnw("failed to close transport", "error", err)
		}
	}
	if f.profiles != nil {
		f.profiles.Close()
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	return redisrepo.CloseRedisClient(f.redisClient)
}
