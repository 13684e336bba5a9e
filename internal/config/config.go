package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	LLM      LLMConfig
	Cost     CostConfig
	Skills   SkillsConfig
	Slack    SlackConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. Redis is optional; when Addr
// is empty the event stream falls back to registry polling only.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// LLMConfig holds model API settings. An empty APIKey disables agent runs
// entirely; triggers fail fast rather than degrade to mocked output.
type LLMConfig struct {
	BaseURL   string
	APIKey    string //nolint:gosec // G117: API credential config
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// CostConfig holds billed-cost projection settings. Multipliers scale raw
// model cost per agent; unlisted agents use the global multiplier.
type CostConfig struct {
	GlobalMultiplier float64
	AgentMultipliers map[string]float64
}

// SkillsConfig holds the directory for per-agent skills/identity documents.
type SkillsConfig struct {
	Dir string
}

// SlackConfig holds optional Slack escalation settings. When BotToken is
// empty no Slack notifications are sent.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("FOREMAN_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("FOREMAN_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("FOREMAN_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("FOREMAN_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("FOREMAN_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	llmTimeout, err := getEnvDuration("FOREMAN_LLM_TIMEOUT", 45*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	llmMaxTokens, err := getEnvInt("FOREMAN_LLM_MAX_TOKENS", 1400)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	globalMultiplier, err := getEnvFloat("FOREMAN_COST_MULTIPLIER", 3.0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	agentMultipliers, err := getEnvFloatMap("FOREMAN_COST_MULTIPLIERS")
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("FOREMAN_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("FOREMAN_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("FOREMAN_DB_USER", "foreman"),
			Password: getEnv("FOREMAN_DB_PASSWORD", ""),
			DBName:   getEnv("FOREMAN_DB_NAME", "foreman_dev"),
			SSLMode:  getEnv("FOREMAN_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("FOREMAN_REDIS_ADDR", ""),
			Password: getEnv("FOREMAN_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:         getEnv("FOREMAN_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		LLM: LLMConfig{
			BaseURL:   getEnv("FOREMAN_LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:    getEnv("FOREMAN_LLM_API_KEY", ""),
			Model:     getEnv("FOREMAN_LLM_MODEL", "anthropic/claude-3.7-sonnet"),
			Timeout:   llmTimeout,
			MaxTokens: llmMaxTokens,
		},
		Cost: CostConfig{
			GlobalMultiplier: globalMultiplier,
			AgentMultipliers: agentMultipliers,
		},
		Skills: SkillsConfig{
			Dir: getEnv("FOREMAN_SKILLS_DIR", "data/skills"),
		},
		Slack: SlackConfig{
			BotToken: getEnv("FOREMAN_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("FOREMAN_SLACK_CHANNEL", "#back-office-escalations"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		log.Warn().Msg("FOREMAN_LLM_API_KEY is not set; agent runs will be rejected")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("FOREMAN_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("FOREMAN_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("FOREMAN_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("FOREMAN_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("FOREMAN_LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("FOREMAN_LLM_MAX_TOKENS must be >= 1, got %d", c.LLM.MaxTokens)
	}
	if c.Cost.GlobalMultiplier <= 0 {
		return fmt.Errorf("FOREMAN_COST_MULTIPLIER must be positive, got %g", c.Cost.GlobalMultiplier)
	}
	for agentID, m := range c.Cost.AgentMultipliers {
		if m <= 0 {
			return fmt.Errorf("FOREMAN_COST_MULTIPLIERS[%s] must be positive, got %g", agentID, m)
		}
	}

	return nil
}

// MultiplierFor returns the billed-cost multiplier for an agent.
func (c *CostConfig) MultiplierFor(agentID string) float64 {
	if m, ok := c.AgentMultipliers[agentID]; ok {
		return m
	}
	return c.GlobalMultiplier
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

// getEnvFloatMap parses a JSON object of agent id to multiplier, e.g.
// {"invoice_matching": 4.2}.
func getEnvFloatMap(key string) (map[string]float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return map[string]float64{}, nil
	}
	out := make(map[string]float64)
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, fmt.Errorf("parsing %s as JSON object: %w", key, err)
	}
	return out, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
