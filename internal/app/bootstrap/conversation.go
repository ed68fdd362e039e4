package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/storefront-ai/cmd/mainconfig"
	"github.com/wolfman30/storefront-ai/internal/agents"
	"github.com/wolfman30/storefront-ai/internal/archive"
	"github.com/wolfman30/storefront-ai/internal/catalog"
	appconfig "github.com/wolfman30/storefront-ai/internal/config"
	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/internal/conversation"
	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/http/handlers"
	"github.com/wolfman30/storefront-ai/internal/knowledge"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/internal/observability/metrics"
	"github.com/wolfman30/storefront-ai/internal/orders"
	"github.com/wolfman30/storefront-ai/internal/payments"
	"github.com/wolfman30/storefront-ai/internal/scheduling"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// Runtime is the conversation stack shared by the API and worker binaries.
// Pool, Redis, Documents, RunAudit and Transcripts are nil when their backend
// is not configured.
type Runtime struct {
	Config *appconfig.Config
	Logger *logging.Logger

	Pool  *pgxpool.Pool
	Redis *redis.Client

	Registry            *prometheus.Registry
	MessagingMetrics    *metrics.MessagingMetrics
	ConversationMetrics *metrics.ConversationMetrics

	Sessions  *messaging.SessionRegistry
	Sender    messaging.Sender
	Dedupe    events.Deduplicator
	Contacts  contacts.Repository
	Agents    handlers.AgentSettingsStore
	Knowledge *knowledge.KnowledgeIndex
	Documents *knowledge.RedisDocumentRepository
	RunAudit  *conversation.RunAuditStore
	State     *conversation.StateStore
	FollowUps *scheduling.Dispatcher

	Transcripts *archive.TranscriptArchiver

	Queue        conversation.JobQueue
	Publisher    *conversation.Publisher
	Orchestrator *conversation.Orchestrator
}

// Stores groups the tenant data collaborators. Tests and the CLI pass memory
// implementations; Build picks postgres when a pool is available.
type Stores struct {
	Contacts  contacts.Repository
	Catalog   catalog.Catalog
	Orders    orders.Ledger
	Payments  payments.Directory
	FollowUps scheduling.Store
}

// MemoryStores returns in-process stores sharing one catalog for stock.
func MemoryStores(products ...catalog.Product) Stores {
	stock := catalog.NewMemoryStore(products...)
	return Stores{
		Contacts:  contacts.NewMemoryRepository(),
		Catalog:   stock,
		Orders:    orders.NewMemoryLedger(stock),
		Payments:  payments.NewMemoryDirectory(),
		FollowUps: scheduling.NewMemoryStore(),
	}
}

// PostgresStores returns pgx-backed stores.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Contacts:  contacts.NewPostgresRepository(pool),
		Catalog:   catalog.NewPostgresStore(pool),
		Orders:    orders.NewPostgresLedger(pool),
		Payments:  payments.NewPostgresDirectory(pool),
		FollowUps: scheduling.NewPostgresStore(pool),
	}
}

// Build connects every configured backend and wires the orchestrator.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	stores := MemoryStores()
	if pool != nil {
		stores = PostgresStores(pool)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}
	rt, err := BuildWithStores(ctx, cfg, stores, logger)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	rt.Pool = pool
	if pool != nil {
		rt.Dedupe = events.NewProcessedStore(pool)
	}
	return rt, nil
}

// Option adjusts how BuildWithStores wires the runtime.
type Option func(*buildOptions)

type buildOptions struct {
	sender messaging.Sender
}

// WithSender replaces the configured outbound transport, e.g. to print
// replies in a terminal.
func WithSender(s messaging.Sender) Option {
	return func(o *buildOptions) {
		o.sender = s
	}
}

// BuildWithStores wires the runtime over the given stores.
func BuildWithStores(ctx context.Context, cfg *appconfig.Config, stores Stores, logger *logging.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	loadAWS := lazyAWS(cfg)

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Contacts: stores.Contacts,
		State:    conversation.NewStateStore(),
		Dedupe:   events.NewMemoryProcessedStore(),
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.MessagingMetrics = metrics.NewMessagingMetrics(rt.Registry)
	rt.ConversationMetrics = metrics.NewConversationMetrics(rt.Registry)

	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if rt.Redis != nil {
		rt.Agents = agents.NewStore(rt.Redis)
		rt.Documents = knowledge.NewRedisDocumentRepository(rt.Redis)
	} else {
		rt.Agents = agents.NewMemoryStore()
	}

	sender, sessions, err := BuildTransport(cfg, rt.MessagingMetrics, logger)
	if err != nil {
		return nil, err
	}
	if o.sender != nil {
		sender = o.sender
	}
	rt.Sender, rt.Sessions = sender, sessions

	embedder, err := BuildEmbedder(ctx, cfg, loadAWS, logger)
	if err != nil {
		return nil, err
	}
	var docs knowledge.DocumentRepository
	if rt.Documents != nil {
		docs = rt.Documents
	}
	rt.Knowledge = knowledge.NewKnowledgeIndex(knowledge.NewVectorIndex(embedder), docs, logger)
	if _, err := rt.Knowledge.Hydrate(ctx); err != nil {
		logger.Warn("knowledge hydration failed", "error", err)
	}
	history := knowledge.NewHistoryIndex(embedder)

	llm, err := BuildLLMClient(ctx, cfg, loadAWS, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := BuildOrderNotifier(ctx, cfg, loadAWS, logger)
	if err != nil {
		return nil, err
	}

	eventLog := conversation.NewEventLogger(logger)
	deps := &conversation.Deps{
		LLM:       llm,
		Catalog:   stores.Catalog,
		Orders:    stores.Orders,
		Knowledge: rt.Knowledge,
		Payments:  stores.Payments,
		FollowUps: stores.FollowUps,
		State:     rt.State,
		Notifier:  notifier,
		Metrics:   rt.ConversationMetrics,
		Events:    eventLog,
		Logger:    logger,
	}
	intentRouter := conversation.NewIntentRouter(conversation.NewIntentClassifier(llm, logger), deps)
	assembler := conversation.NewContextAssembler(stores.Contacts, history, logger).WithHistoryWindow(cfg.HistoryWindow)

	var runLoop *conversation.RunLoop
	if svc := BuildCompletionService(cfg); svc != nil {
		runLoop = conversation.NewRunLoop(svc, conversation.NewToolDispatcher(deps), stores.Contacts, logger).
			WithMaxCycles(cfg.RunMaxCycles).
			WithTimeout(cfg.RunTimeout).
			WithHistory(history).
			WithMetrics(rt.ConversationMetrics).
			WithEvents(eventLog)
		if cfg.RunAuditTable != "" {
			awsCfg, err := loadAWS(ctx)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: run audit: %w", err)
			}
			rt.RunAudit = conversation.NewRunAuditStore(dynamodb.NewFromConfig(awsCfg), cfg.RunAuditTable)
			runLoop.WithAudit(rt.RunAudit)
		}
		logger.Info("assistant run loop enabled", "max_cycles", cfg.RunMaxCycles, "run_audit", rt.RunAudit != nil)
	}

	rt.Orchestrator = conversation.NewOrchestrator(conversation.OrchestratorDeps{
		Sessions:  sessions,
		Contacts:  stores.Contacts,
		Agents:    rt.Agents,
		State:     rt.State,
		Assembler: assembler,
		Router:    intentRouter,
		RunLoop:   runLoop,
		Sender:    sender,
		History:   history,
		Metrics:   rt.ConversationMetrics,
		Events:    eventLog,
		Logger:    logger,
	})

	deliverer := conversation.NewFollowUpDeliverer(stores.Contacts, sessions, sender, logger)
	rt.FollowUps = scheduling.NewDispatcher(stores.FollowUps, deliverer, logger.Component("follow-ups"))

	if cfg.UseMemoryQueue || strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		if !cfg.UseMemoryQueue {
			logger.Warn("CONVERSATION_QUEUE_URL not set; using in-memory queue")
		}
		rt.Queue = conversation.NewPartitionedMemoryQueue(0, cfg.WorkerCount)
	} else {
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: sqs: %w", err)
		}
		rt.Queue = conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
	}
	rt.Publisher = conversation.NewPublisher(rt.Queue, logger)

	if bucket := strings.TrimSpace(cfg.TranscriptBucket); bucket != "" {
		exporter, ok := stores.Contacts.(contacts.TurnExporter)
		if !ok {
			return nil, errors.New("bootstrap: transcript archive: contacts store cannot export turns")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: transcript archive: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		rt.Transcripts = archive.NewTranscriptArchiver(exporter, client, bucket, logger.Component("archive"))
		logger.Info("transcript archive enabled", "bucket", bucket, "schedule", cfg.TranscriptSchedule)
	}

	return rt, nil
}

// InProcessQueue reports whether jobs must be consumed by the same process
// that publishes them.
func (rt *Runtime) InProcessQueue() bool {
	_, ok := rt.Queue.(*conversation.MemoryQueue)
	return ok
}

// NewWorker builds a queue consumer for the orchestrator.
func (rt *Runtime) NewWorker() *conversation.Worker {
	return conversation.NewWorker(rt.Orchestrator, rt.Queue, rt.Logger.Component("worker"),
		conversation.WithWorkerCount(rt.Config.WorkerCount),
		conversation.WithJobTimeout(rt.Config.RunTimeout+rt.Config.RunTimeout/2),
		conversation.WithJobObserver(rt.ConversationMetrics),
	)
}

// Close releases backend connections.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}

func lazyAWS(cfg *appconfig.Config) awsLoader {
	var (
		once   sync.Once
		awsCfg aws.Config
		err    error
	)
	return func(ctx context.Context) (aws.Config, error) {
		once.Do(func() {
			awsCfg, err = mainconfig.LoadAWSConfig(ctx, cfg)
		})
		return awsCfg, err
	}
}
