package agent

import (
	"context"
	"fmt"
	"sync"

	rd "github.com/go-redis/redis/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/config"
	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/gateway"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/mohitkumar/chatflow/persistence/postgres"
	"github.com/mohitkumar/chatflow/persistence/redis"
	"github.com/mohitkumar/chatflow/rest"
	"github.com/mohitkumar/chatflow/service"
	"github.com/mohitkumar/chatflow/shard"
	"github.com/mohitkumar/chatflow/shard/executor"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

type Agent struct {
	Config           config.Config
	redisClient      rd.UniversalClient
	pgPool           *pgxpool.Pool
	metadataService  metadata.MetadataService
	ring             *shard.Ring
	contextStore     *shard.ShardedStore
	localShards      []*shard.Shard
	gateways         engine.Gateways
	workerPool       *util.WorkerPool
	interpreter      *engine.Interpreter
	executionService *service.ExecutionService
	httpServer       *rest.Server
	shutdown         bool
	shutdownLock     sync.Mutex
	wg               sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config: config,
	}
	setup := []func() error{
		a.setupAnalytics,
		a.setupConnections,
		a.setupMetadataService,
		a.setupContextStore,
		a.setupGateways,
		a.setupInterpreter,
		a.setupExecutors,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupAnalytics() error {
	if err := analytics.InitDataCollector(a.Config.AnalyticsConfig); err != nil {
		return err
	}
	return analytics.RegisterViews()
}

func (a *Agent) usesStorage(t config.StorageType) bool {
	return a.Config.StorageType == t || a.Config.MetadataType == t
}

func (a *Agent) setupConnections() error {
	if a.usesStorage(config.STORAGE_TYPE_REDIS) {
		a.redisClient = redis.NewClient(redis.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
			Password:  a.Config.RedisConfig.Password,
		})
	}
	if a.usesStorage(config.STORAGE_TYPE_POSTGRES) || a.Config.PostgresConfig.DSN != "" {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, a.Config.PostgresConfig.DSN)
		if err != nil {
			return fmt.Errorf("error connecting to postgres: %w", err)
		}
		if err := postgres.CreateSchema(ctx, pool); err != nil {
			pool.Close()
			return err
		}
		a.pgPool = pool
	}
	return nil
}

func (a *Agent) setupMetadataService() error {
	var storage metadata.Storage
	switch a.Config.MetadataType {
	case config.STORAGE_TYPE_REDIS:
		storage = redis.NewMetadataStorage(a.redisClient, a.Config.RedisConfig.Namespace)
	case config.STORAGE_TYPE_POSTGRES:
		storage = postgres.NewMetadataStorage(a.pgPool)
	case config.STORAGE_TYPE_INMEM:
		storage = memory.NewMetadataStorage()
	default:
		return fmt.Errorf("unsupported metadata storage %q", a.Config.MetadataType)
	}
	a.metadataService = metadata.NewMetadataService(storage)
	return nil
}

func (a *Agent) setupContextStore() error {
	var newStore func(partition int) persistence.ContextStore
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		newStore = func(partition int) persistence.ContextStore {
			return redis.NewContextStore(a.redisClient, a.Config.RedisConfig.Namespace, shard.PartitionName(partition))
		}
	case config.STORAGE_TYPE_INMEM:
		newStore = func(int) persistence.ContextStore {
			return memory.NewContextStore()
		}
	default:
		return fmt.Errorf("unsupported context storage %q", a.Config.StorageType)
	}
	a.ring = shard.NewRing(a.Config.ClusterConfig.PartitionCount)
	a.ring.Join(a.Config.ClusterConfig.NodeName)
	a.contextStore = shard.NewShardedStore(a.ring, newStore)
	return nil
}

func (a *Agent) setupGateways() error {
	gc := a.Config.GatewayConfig
	webhook := gateway.NewRestyWebhookCaller(gc.WebhookTimeout)
	a.gateways.Webhook = webhook
	if gc.TransportURL != "" {
		a.gateways.Sender = gateway.NewRestyMessageSender(gc.TransportURL, gc.WebhookTimeout)
	} else {
		logger.Info("no transport url configured, outbound messages are only logged")
		a.gateways.Sender = gateway.LogMessageSender{}
	}
	a.gateways.AI = gateway.NewOpenAICompleter(gc.OpenAIKey, gc.OpenAIBaseURL, gc.OpenAIModel, gc.WebhookTimeout)
	var records gateway.RecordWriter
	if a.pgPool != nil {
		records = gateway.NewPostgresRecordWriter(a.pgPool)
	} else {
		records = gateway.NewMemoryRecordWriter()
	}
	a.gateways.Actions = gateway.NewActionRouter(gateway.NewRestyEmailRelay(gc.EmailRelayURL, gc.WebhookTimeout), records, webhook)
	return nil
}

func (a *Agent) setupInterpreter() error {
	ec := a.Config.ExecutorConfig
	a.workerPool = util.NewWorkerPool("interpreter", ec.WorkerCount, ec.WorkerCapacity, &a.wg)
	a.workerPool.Start()
	a.interpreter = engine.NewInterpreter(a.contextStore, a.metadataService, a.gateways, a.workerPool, engine.Config{
		MaxAttempts:  ec.RetryAttempts,
		RetryBase:    ec.RetryBase,
		MaxSteps:     ec.MaxSteps,
		CallTimeout:  a.Config.GatewayConfig.WebhookTimeout,
		StallTimeout: ec.StallTimeout,
	})
	a.executionService = service.NewExecutionService(a.interpreter)
	return nil
}

// setupExecutors starts the sweep executors of the partitions this node owns.
func (a *Agent) setupExecutors() error {
	interval := a.Config.ClusterConfig.SweepInterval
	for _, p := range a.ring.PartitionsOf(a.Config.ClusterConfig.NodeName) {
		sh, err := a.contextStore.Shard(p)
		if err != nil {
			return err
		}
		sh.RegisterExecutor("delay", executor.NewDelayExecutor(sh, a.interpreter, interval, &a.wg))
		sh.RegisterExecutor("retry", executor.NewRetryExecutor(sh, a.interpreter, interval, &a.wg))
		sh.RegisterExecutor("timeout", executor.NewTimeoutExecutor(sh, a.interpreter, interval, &a.wg))
		sh.Start()
		a.localShards = append(a.localShards, sh)
	}
	logger.Info("shards started", zap.String("node", a.Config.ClusterConfig.NodeName), zap.Int("shards", len(a.localShards)))
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.executionService)
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			for _, sh := range a.localShards {
				sh.Stop()
			}
			return nil
		},
		func() error {
			a.workerPool.Stop()
			return nil
		},
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logger.Error("error closing redis client", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	analytics.UnregisterViews()
	return nil
}
