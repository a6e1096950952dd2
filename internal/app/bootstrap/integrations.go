package bootstrap

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/support-integrations/internal/audit"
	"github.com/wolfman30/support-integrations/internal/botservice"
	"github.com/wolfman30/support-integrations/internal/claims"
	appconfig "github.com/wolfman30/support-integrations/internal/config"
	"github.com/wolfman30/support-integrations/internal/identity"
	"github.com/wolfman30/support-integrations/internal/integration"
	"github.com/wolfman30/support-integrations/internal/jobs"
	"github.com/wolfman30/support-integrations/internal/observability/metrics"
	"github.com/wolfman30/support-integrations/internal/orchestrator"
	"github.com/wolfman30/support-integrations/internal/store"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

// JobStore tracks job status for the publisher and the dispatcher.
type JobStore interface {
	jobs.Recorder
	jobs.Updater
}

// Infra is the shared infrastructure the integrations run on. Redis, Jobs and
// Metrics are optional.
type Infra struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Queue   jobs.Queue
	Jobs    JobStore
	Metrics *metrics.IntegrationMetrics
}

// Integrations are the wired integration services.
type Integrations struct {
	Stores       *store.Postgres
	Orchestrator *orchestrator.Orchestrator
	// Resolver is nil when enrichment is disabled.
	Resolver   *identity.Resolver
	Dispatcher *jobs.Dispatcher
	Publisher  *jobs.Publisher
}

// BuildIntegrations wires the stores, the bot orchestrator, the identity
// resolver and the job dispatcher onto infra.
func BuildIntegrations(cfg *appconfig.Config, infra Infra, logger *logging.Logger) (*Integrations, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if infra.Pool == nil {
		return nil, errors.New("bootstrap: postgres pool is required")
	}
	if infra.Queue == nil {
		return nil, errors.New("bootstrap: queue is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	stores := store.NewPostgres(infra.Pool)
	auditor := audit.NewService(AuditDB(infra.Pool))

	callOpts := []integration.Option{integration.WithLogger(logger)}
	if infra.Metrics != nil {
		callOpts = append(callOpts, integration.WithObserver(infra.Metrics))
	}

	botOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger.With("component", "agent_bot")),
		orchestrator.WithAuditor(auditor),
	}
	if infra.Metrics != nil {
		botOpts = append(botOpts, orchestrator.WithMetrics(infra.Metrics))
	}
	endpoint := botservice.Endpoint{URL: cfg.BotEndpointURL, Timeout: cfg.BotTimeout}
	botCaller := integration.New("bot", append(callOpts, integration.WithTimeout(cfg.BotTimeout))...)
	orch := orchestrator.New(orchestrator.Deps{
		Bot:           botservice.NewClient(endpoint, botCaller),
		Messages:      stores.Messages,
		Conversations: stores.Conversations,
		AgentBots:     stores.AgentBots,
		Replies:       stores.Replies,
	}, botOpts...)
	if !endpoint.Enabled() {
		logger.Warn("BOT_ENDPOINT_URL not set; agent bot replies will be skipped")
	}

	dispatchOpts := []jobs.DispatcherOption{
		jobs.WithRetryPolicy(cfg.JobMaxAttempts, cfg.JobRetryBaseDelay),
		jobs.WithProcessedStore(jobs.NewProcessedStore(infra.Pool)),
	}
	if infra.Jobs != nil {
		dispatchOpts = append(dispatchOpts, jobs.WithJobUpdater(infra.Jobs))
	}
	if infra.Metrics != nil {
		dispatchOpts = append(dispatchOpts, jobs.WithJobMetrics(infra.Metrics))
	}

	var resolver *identity.Resolver
	if cfg.EnrichmentEnabled {
		host := cfg.IdentityHost()
		if host == "" {
			return nil, errors.New("bootstrap: identity host is required when enrichment is enabled")
		}
		idCaller := integration.New("identity", append(callOpts, integration.WithTimeout(cfg.IdentityTimeout))...)
		resolverOpts := []identity.Option{
			identity.WithPhonePrefix(cfg.IdentityPhonePrefix),
			identity.WithLogger(logger.With("component", "enrichment")),
			identity.WithAuditor(auditor),
		}
		if infra.Redis != nil {
			resolverOpts = append(resolverOpts, identity.WithClaims(claims.NewStore(infra.Redis), cfg.EnrichmentClaimTTL))
		}
		if infra.Metrics != nil {
			resolverOpts = append(resolverOpts, identity.WithMetrics(infra.Metrics))
		}
		resolver = identity.NewResolver(identity.NewClient(host, idCaller), stores.Contacts, resolverOpts...)
		dispatchOpts = append(dispatchOpts, jobs.WithContactResolver(resolver))
		logger.Info("contact enrichment enabled", "identity_host", host, "claims", infra.Redis != nil)
	}

	var recorder jobs.Recorder
	if infra.Jobs != nil {
		recorder = infra.Jobs
	}

	return &Integrations{
		Stores:       stores,
		Orchestrator: orch,
		Resolver:     resolver,
		Dispatcher:   jobs.NewDispatcher(orch, infra.Queue, logger.With("component", "dispatcher"), dispatchOpts...),
		Publisher:    jobs.NewPublisher(infra.Queue, recorder, logger),
	}, nil
}

// BuildWorker runs the dispatcher against the queue with the configured
// concurrency.
func BuildWorker(cfg *appconfig.Config, queue jobs.Queue, integrations *Integrations, logger *logging.Logger) *jobs.Worker {
	count := 1
	if cfg != nil && cfg.WorkerCount > 0 {
		count = cfg.WorkerCount
	}
	return jobs.NewWorker(queue, integrations.Dispatcher, logger, jobs.WithWorkerCount(count))
}
