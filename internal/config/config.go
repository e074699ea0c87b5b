package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Jira      JiraConfig      `mapstructure:"jira"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Shortener ShortenerConfig `mapstructure:"shortener"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// StoreConfig selects and configures the job/link record store backend.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"` // memory, sqlite, postgres, dynamodb
	Path            string        `mapstructure:"path"`   // sqlite file
	DSN             string        `mapstructure:"dsn"`    // postgres
	JobsTable       string        `mapstructure:"jobs_table"`
	LinksTable      string        `mapstructure:"links_table"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`   // local DynamoDB override
	AccessKey       string        `mapstructure:"access_key"` // static creds for local stacks
	SecretKey       string        `mapstructure:"secret_key"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// QueueConfig selects and configures the work queue backend.
type QueueConfig struct {
	Driver            string        `mapstructure:"driver"` // memory, sqs
	BatchSize         int           `mapstructure:"batch_size"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
	URL               string        `mapstructure:"url"`
	DeadLetterURL     string        `mapstructure:"dead_letter_url"`
	Region            string        `mapstructure:"region"`
	Endpoint          string        `mapstructure:"endpoint"`
	AccessKey         string        `mapstructure:"access_key"`
	SecretKey         string        `mapstructure:"secret_key"`
}

type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type SecretsConfig struct {
	Provider string `mapstructure:"provider"` // env, ssm
	Region   string `mapstructure:"region"`
}

type JiraConfig struct {
	Instances  map[string]JiraInstanceConfig `mapstructure:"instances"`
	Timeout    time.Duration                 `mapstructure:"timeout"`
	RetryCount int                           `mapstructure:"retry_count"`
}

type JiraInstanceConfig struct {
	URL string `mapstructure:"url"`
}

type ChatConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	APIKeySecret string        `mapstructure:"api_key_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ShortenerConfig struct {
	CodeLength int    `mapstructure:"code_length"`
	BaseURL    string `mapstructure:"base_url"`
}

// JobsConfig holds bulk job lifecycle knobs.
type JobsConfig struct {
	Retention     time.Duration `mapstructure:"retention"`      // record TTL
	Staleness     time.Duration `mapstructure:"staleness"`      // force-close idle in-progress jobs
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	ItemDelay     time.Duration `mapstructure:"item_delay"` // upstream rate-limit knob
	Workers       int           `mapstructure:"workers"`    // parallel enqueue fan-out
}

// InstanceNames returns the configured Jira instance names, sorted for
// stable error messages.
func (c *JiraConfig) InstanceNames() []string {
	names := make([]string, 0, len(c.Instances))
	for name := range c.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "./data/toolgate.db")
	v.SetDefault("store.jobs_table", "toolgate-jobs")
	v.SetDefault("store.links_table", "toolgate-links")
	v.SetDefault("store.region", "eu-central-1")
	v.SetDefault("store.max_idle_conns", 2)
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.conn_max_lifetime", time.Hour)
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.visibility_timeout", 30*time.Second)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.wait_time", 20*time.Second)
	v.SetDefault("queue.region", "eu-central-1")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl", 2*time.Second)
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.region", "eu-central-1")
	v.SetDefault("jira.timeout", 30*time.Second)
	v.SetDefault("jira.retry_count", 2)
	v.SetDefault("jira.instances.jira3.url", "https://jira3.example.com/rest/tempo-timesheets/4/worklogs/")
	v.SetDefault("jira.instances.jira9.url", "https://jira9.example.com/rest/tempo-timesheets/4/worklogs/")
	v.SetDefault("jira.instances.jiradc.url", "https://jiradc.example.com/rest/tempo-timesheets/4/worklogs/")
	v.SetDefault("chat.base_url", "https://api.openai.com/v1")
	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("chat.api_key_secret", "OPENAI_API_KEY")
	v.SetDefault("chat.timeout", 60*time.Second)
	v.SetDefault("shortener.code_length", 8)
	v.SetDefault("shortener.base_url", "http://localhost:8080/r")
	v.SetDefault("jobs.retention", 7*24*time.Hour)
	v.SetDefault("jobs.staleness", time.Hour)
	v.SetDefault("jobs.sweep_interval", 5*time.Minute)
	v.SetDefault("jobs.item_delay", 200*time.Millisecond)
	v.SetDefault("jobs.workers", 8)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("store.dsn", "DATABASE_DSN")
	v.BindEnv("store.endpoint", "DYNAMODB_ENDPOINT")
	v.BindEnv("store.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("store.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("queue.url", "QUEUE_URL")
	v.BindEnv("queue.dead_letter_url", "DEAD_LETTER_QUEUE_URL")
	v.BindEnv("queue.endpoint", "SQS_ENDPOINT")
	v.BindEnv("cache.addr", "REDIS_ADDR")
	v.BindEnv("cache.password", "REDIS_PASSWORD")
	v.BindEnv("chat.base_url", "OPENAI_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
