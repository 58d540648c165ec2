package authgate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/notify"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
	"github.com/redis/go-redis/v9"
)

// dummyPassword is hashed once at build time so unknown-user sign-ins
// spend the same time in the hasher as real ones.
const dummyPassword = "authgate-timing-equalizer"

// Builder assembles an Engine. Configure it once, call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store          CredentialStore
	sender         NotificationSender
	challengeStore otp.Store
	strategies     []Strategy
	logger         *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the session cache, the rate limiter
// and, by default, OTP challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the durable store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithNotificationSender sets the transport for one-time codes.
func (b *Builder) WithNotificationSender(sender NotificationSender) *Builder {
	b.sender = sender
	return b
}

// WithChallengeStore sets the OTP challenge store. Required when
// Config.OTP.Backend is OTPBackendDatabase, ignored otherwise.
func (b *Builder) WithChallengeStore(store otp.Store) *Builder {
	b.challengeStore = store
	return b
}

// WithStrategy registers s, replacing the built-in strategy of the same
// kind.
func (b *Builder) WithStrategy(s Strategy) *Builder {
	b.strategies = append(b.strategies, s)
	return b
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.sender == nil {
		return nil, errors.New("notification sender required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.New(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("hash timing equalizer: %w", err)
	}

	// -------- SESSIONS --------
	sessions, err := session.NewManager(
		b.store,
		session.NewCache(b.redis, cfg.Session.RedisPrefix),
		cfg.sessionConfig(),
		logger,
	)
	if err != nil {
		return nil, err
	}

	// -------- OTP --------
	challenges := b.challengeStore
	if cfg.OTP.Backend == OTPBackendRedis {
		challenges = stores.NewOTPStore(b.redis, cfg.OTP.RedisPrefix)
	}
	if challenges == nil {
		return nil, errors.New("OTP Backend database requires a challenge store")
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		store:     b.store,
		hasher:    hasher,
		dummyHash: dummyHash,
		sessions:  sessions,
		redis:     b.redis,
		logger:    logger,
		metrics:   NewMetrics(cfg.Metrics),
	}

	engine.dispatcher = notify.NewDispatcher(
		notify.Config{
			BufferSize:  cfg.Delivery.BufferSize,
			Workers:     cfg.Delivery.Workers,
			DropIfFull:  cfg.Delivery.DropIfFull,
			SendTimeout: cfg.Delivery.SendTimeout,
		},
		b.sender,
		notify.WithLogger(logger),
		notify.WithFailureHook(func(_ otp.Delivery, err error) {
			if errors.Is(err, notify.ErrDropped) {
				engine.metricInc(MetricOTPDeliveryDropped)
				return
			}
			engine.metricInc(MetricOTPDeliveryFailed)
		}),
	)

	engine.otp, err = otp.NewEngine(challenges, engine.dispatcher, otp.Config{
		Digits:      cfg.OTP.Digits,
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
	})
	if err != nil {
		engine.dispatcher.Close()
		return nil, err
	}

	// -------- RATE LIMIT --------
	if cfg.RateLimit.Enabled {
		engine.limiter = limiters.NewRouteLimiter(
			rate.New(b.redis, cfg.RateLimit.RedisPrefix),
			cfg.routeRules(),
		)
	}

	sessions.SetHooks(session.Hooks{
		CacheHit:  func() { engine.metricInc(MetricSessionCacheHit) },
		CacheMiss: func() { engine.metricInc(MetricSessionCacheMiss) },
	})

	// -------- STRATEGIES --------
	engine.strategies = strategyTable{
		StrategyPassword: passwordStrategy{e: engine},
		StrategyEmailOTP: emailOTPStrategy{e: engine},
		StrategySession:  sessionStrategy{e: engine},
	}
	for _, s := range b.strategies {
		if s == nil || s.Kind() == "" {
			engine.dispatcher.Close()
			return nil, errors.New("strategy must have a kind")
		}
		engine.strategies[s.Kind()] = s
	}

	b.built = true

	return engine, nil
}
