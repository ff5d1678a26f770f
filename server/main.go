package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohitkumar/chatflow/agent"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	hostname, _ := os.Hostname()
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "context storage: memory or redis")
	cmd.Flags().String("metadata-impl", "redis", "flow definition storage: memory, redis or postgres")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("redis-password", "", "redis password")
	cmd.Flags().String("namespace", "chatflow", "namespace used in storage")
	cmd.Flags().String("postgres-dsn", "", "postgres connection string for flow definitions and save_database records")
	cmd.Flags().String("node-name", hostname, "name of this node in the partition ring")
	cmd.Flags().Int("partitions", 16, "number of context partitions")
	cmd.Flags().Duration("sweep-interval", time.Second, "how often timers and retries are swept")
	cmd.Flags().Int("worker-count", 16, "interpreter worker goroutines")
	cmd.Flags().Int("worker-capacity", 512, "interpreter task queue capacity")
	cmd.Flags().Int("retry-attempts", 3, "attempts for ai, webhook and call_api gateway calls")
	cmd.Flags().Duration("retry-base", 2*time.Second, "backoff after the first failed call attempt")
	cmd.Flags().Int("max-steps", 500, "nodes a run may execute without suspending")
	cmd.Flags().Duration("stall-timeout", 0, "time an in-flight context may go without progress before it is recovered, 0 for twice the webhook timeout")
	cmd.Flags().String("transport-url", "", "base url of the message transport, messages are logged when empty")
	cmd.Flags().Duration("webhook-timeout", 30*time.Second, "timeout of outbound gateway calls")
	cmd.Flags().String("openai-key", "", "api key of the ai gateway")
	cmd.Flags().String("openai-base-url", "", "base url of an openai compatible api")
	cmd.Flags().String("openai-model", "gpt-3.5-turbo", "model used when a node names none")
	cmd.Flags().String("email-relay-url", "", "http mail relay used by send_email actions")
	cmd.Flags().String("analytics-file", "", "file receiving flow analytics events, disabled when empty")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}
	viper.SetEnvPrefix("CHATFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.MetadataType = config.StorageType(viper.GetString("metadata-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.PostgresConfig.DSN = viper.GetString("postgres-dsn")
	c.cfg.ClusterConfig.NodeName = viper.GetString("node-name")
	c.cfg.ClusterConfig.PartitionCount = viper.GetInt("partitions")
	c.cfg.ClusterConfig.SweepInterval = viper.GetDuration("sweep-interval")
	c.cfg.ExecutorConfig.WorkerCount = viper.GetInt("worker-count")
	c.cfg.ExecutorConfig.WorkerCapacity = viper.GetInt("worker-capacity")
	c.cfg.ExecutorConfig.RetryAttempts = viper.GetInt("retry-attempts")
	c.cfg.ExecutorConfig.RetryBase = viper.GetDuration("retry-base")
	c.cfg.ExecutorConfig.MaxSteps = viper.GetInt("max-steps")
	c.cfg.ExecutorConfig.StallTimeout = viper.GetDuration("stall-timeout")
	c.cfg.GatewayConfig.TransportURL = viper.GetString("transport-url")
	c.cfg.GatewayConfig.WebhookTimeout = viper.GetDuration("webhook-timeout")
	c.cfg.GatewayConfig.OpenAIKey = viper.GetString("openai-key")
	c.cfg.GatewayConfig.OpenAIBaseURL = viper.GetString("openai-base-url")
	c.cfg.GatewayConfig.OpenAIModel = viper.GetString("openai-model")
	c.cfg.GatewayConfig.EmailRelayURL = viper.GetString("email-relay-url")
	if file := viper.GetString("analytics-file"); file != "" {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{FileName: file, CollectorType: analytics.LOG_FILE_DATA_COLLECTOR}
	} else {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{CollectorType: analytics.NOOP_DATA_COLLECTOR}
	}
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	if err := agent.Start(); err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "chatflow",
		Short:   "runs whatsapp automation flows",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
