package config

import (
	"time"

	"github.com/mohitkumar/chatflow/analytics"
)

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"
const STORAGE_TYPE_POSTGRES StorageType = "postgres"

type Config struct {
	RedisConfig     RedisStorageConfig
	PostgresConfig  PostgresConfig
	HttpPort        int
	StorageType     StorageType
	MetadataType    StorageType
	ClusterConfig   ClusterConfig
	ExecutorConfig  ExecutorConfig
	GatewayConfig   GatewayConfig
	AnalyticsConfig analytics.DataCollectorConfig
}

type ClusterConfig struct {
	NodeName       string
	PartitionCount int
	SweepInterval  time.Duration
}

type ExecutorConfig struct {
	WorkerCount    int
	WorkerCapacity int
	RetryAttempts  int
	RetryBase      time.Duration
	MaxSteps       int
	StallTimeout   time.Duration
}

type GatewayConfig struct {
	TransportURL   string
	WebhookTimeout time.Duration
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	EmailRelayURL  string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
	Password  string
}

type PostgresConfig struct {
	DSN string
}
