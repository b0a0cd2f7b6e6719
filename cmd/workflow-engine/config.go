package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/flowruntime/engine/workflow/breaker"
	"github.com/flowruntime/engine/workflow/coord"
	"github.com/flowruntime/engine/workflow/exec"
	"github.com/flowruntime/engine/workflow/handler"
	"github.com/flowruntime/engine/workflow/queue"
	"github.com/flowruntime/engine/workflow/schedule"
	"github.com/flowruntime/engine/workflow/store"
)

// profile is the resolved runtime configuration, bound from flags and
// the environment.
type profile struct {
	Addr string

	StoreDriver string // memory | sqlite | postgres | mysql
	StoreDSN    string

	QueueDriver string // memory | redis
	RedisAddr   string
	QueueName   string

	QueuePrefetch        int
	NodeExecutionTimeout time.Duration
	MaxRetries           int
	MaxInFlight          int
	BreakerThreshold     int
	BreakerCooldown      time.Duration
	SandboxTimeout       time.Duration

	LLMProvider     string // anthropic | openai | google | none
	LLMModel        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string

	OTelEnabled bool
}

func loadProfile() profile {
	return profile{
		Addr:                 viper.GetString("addr"),
		StoreDriver:          viper.GetString("store-driver"),
		StoreDSN:             viper.GetString("store-dsn"),
		QueueDriver:          viper.GetString("queue-driver"),
		RedisAddr:            viper.GetString("redis-addr"),
		QueueName:            viper.GetString("queue-name"),
		QueuePrefetch:        viper.GetInt("QUEUE_PREFETCH"),
		NodeExecutionTimeout: viper.GetDuration("NODE_EXECUTION_TIMEOUT"),
		MaxRetries:           viper.GetInt("MAX_RETRIES"),
		MaxInFlight:          viper.GetInt("MAX_IN_FLIGHT"),
		BreakerThreshold:     viper.GetInt("CIRCUIT_BREAKER_THRESHOLD"),
		BreakerCooldown:      viper.GetDuration("CIRCUIT_BREAKER_COOLDOWN"),
		SandboxTimeout:       viper.GetDuration("SANDBOX_TIMEOUT"),
		LLMProvider:          viper.GetString("LLM_PROVIDER"),
		LLMModel:             viper.GetString("LLM_MODEL"),
		AnthropicAPIKey:      viper.GetString("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:         viper.GetString("OPENAI_API_KEY"),
		GoogleAPIKey:         viper.GetString("GOOGLE_API_KEY"),
		OTelEnabled:          viper.GetBool("OTEL_ENABLED"),
	}
}

func setConfigDefaults() {
	viper.SetDefault("addr", ":8080")
	viper.SetDefault("store-driver", "sqlite")
	viper.SetDefault("store-dsn", "flowengine.db")
	viper.SetDefault("queue-driver", "memory")
	viper.SetDefault("redis-addr", "localhost:6379")
	viper.SetDefault("queue-name", "flowengine:executions")

	// Engine option defaults.
	viper.SetDefault("QUEUE_PREFETCH", 1)
	viper.SetDefault("NODE_EXECUTION_TIMEOUT", 30*time.Second)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("MAX_IN_FLIGHT", 4)
	viper.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)
	viper.SetDefault("CIRCUIT_BREAKER_COOLDOWN", 60*time.Second)
	viper.SetDefault("SANDBOX_TIMEOUT", 30*time.Second)

	viper.SetDefault("LLM_PROVIDER", "anthropic")
	viper.SetDefault("OTEL_ENABLED", false)

	viper.AutomaticEnv()
}

func (p profile) openStore(ctx context.Context) (store.Store, error) {
	switch p.StoreDriver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(ctx, p.StoreDSN)
	case "postgres":
		return store.OpenPostgres(ctx, p.StoreDSN)
	case "mysql":
		return store.OpenMySQL(ctx, p.StoreDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", p.StoreDriver)
	}
}

func (p profile) openQueue() (queue.Queue, error) {
	switch p.QueueDriver {
	case "memory":
		return queue.NewMemoryQueue(0), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: p.RedisAddr})
		return queue.NewRedisQueue(client, p.QueueName, 0), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", p.QueueDriver)
	}
}

// chatModel resolves the LLM_PROVIDER switch to a concrete ChatModel for
// the LLM_PROMPT block. "none" (or a missing API key) returns nil, which
// makes LLM_PROMPT nodes fail with CONFIG instead of at startup.
func (p profile) chatModel() (handler.ChatModel, error) {
	switch p.LLMProvider {
	case "", "none":
		return nil, nil
	case "anthropic":
		if p.AnthropicAPIKey == "" {
			return nil, nil
		}
		return handler.NewAnthropicModel(p.AnthropicAPIKey, p.LLMModel), nil
	case "openai":
		if p.OpenAIAPIKey == "" {
			return nil, nil
		}
		return handler.NewOpenAIModel(p.OpenAIAPIKey, p.LLMModel), nil
	case "google":
		if p.GoogleAPIKey == "" {
			return nil, nil
		}
		return handler.NewGoogleModel(p.GoogleAPIKey, p.LLMModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", p.LLMProvider)
	}
}

func (p profile) breakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold:    uint32(p.BreakerThreshold),
		CooldownPeriod:      p.BreakerCooldown,
		HalfOpenMaxRequests: 1,
	}
}

func (p profile) coordConfig() coord.Config {
	return coord.Config{
		Scheduler: schedule.Config{MaxInFlight: p.MaxInFlight},
		Executor: exec.Config{
			PerNodeTimeout: p.NodeExecutionTimeout,
			Retry: exec.RetryPolicy{
				MaxAttempts: p.MaxRetries,
				BaseDelay:   time.Second,
				MaxDelay:    30 * time.Second,
			},
		},
	}
}
