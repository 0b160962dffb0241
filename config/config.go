package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"gexpipe/logger"
)

type Config struct {
	Timescale TimescaleConfig `json:"timescale"`
	Redis     RedisConfig     `json:"redis"`
	Asynq     AsynqConfig     `json:"asynq"`
	Dhan      DhanConfig      `json:"dhan"`
	Telegram  TelegramConfig  `json:"telegram"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Holidays  []string        `json:"holidays"`
	APIPort   string          `json:"api_port"`
}

type TimescaleConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	User            string `json:"user"`
	Password        string `json:"password"`
	DBName          string `json:"DBName"`
	MaxConnections  int    `json:"max_connections"`
	MinConnections  int    `json:"min_connections"`
	MaxConnLifetime string `json:"max_conn_lifetime"`
	MaxConnIdleTime string `json:"max_conn_idle_time"`

	// Private fields to store parsed durations
	maxConnLifetimeDuration time.Duration
	maxConnIdleTimeDuration time.Duration
}

type RedisConfig struct {
	Host           string `json:"host"`
	Port           string `json:"port"`
	Password       string `json:"password"`
	DB             int    `json:"db"`
	MaxConnections int    `json:"max_connections"`
	MinConnections int    `json:"min_connections"`
	ConnectTimeout string `json:"connect_timeout"`

	connectTimeoutDuration time.Duration
}

type AsynqConfig struct {
	Host        string                 `json:"host"`
	Port        string                 `json:"port"`
	Password    string                 `json:"password"`
	DB          int                    `json:"db"`
	Concurrency int                    `json:"concurrency"`
	Queues      map[string]QueueConfig `json:"queues"`
}

type QueueConfig struct {
	Priority int  `json:"priority"`
	Enabled  bool `json:"enabled"`
}

type DhanConfig struct {
	BaseURL     string `json:"base_url"`
	AccessToken string `json:"access_token"`
	ClientID    string `json:"client_id"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type PipelineConfig struct {
	FetchInterval      string `json:"fetch_interval"`
	FetchPause         string `json:"fetch_pause"`
	CompactionInterval string `json:"compaction_interval"`
	AuditInterval      string `json:"audit_interval"`
	BucketMinutes      int    `json:"bucket_minutes"`
	StrikeWindow       int    `json:"strike_window"`

	fetchIntervalDuration      time.Duration
	fetchPauseDuration         time.Duration
	compactionIntervalDuration time.Duration
	auditIntervalDuration      time.Duration
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig loads configuration and handles errors internally
func GetConfig() *Config {
	once.Do(func() {
		instance = loadConfig()
	})
	return instance
}

func loadConfig() *Config {
	log := logger.GetLogger()

	// Secrets may come from a .env alongside the config file
	_ = godotenv.Load()

	workDir, err := os.Getwd()
	if err != nil {
		log.Error("Failed to get working directory", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	configPath := filepath.Join(workDir, "config", "config.json")

	configFile, err := os.ReadFile(configPath)
	if err != nil {
		log.Error("Failed to read config file", map[string]interface{}{
			"error": err.Error(),
			"path":  configPath,
		})
		os.Exit(1)
	}

	var config Config
	if err := json.Unmarshal(configFile, &config); err != nil {
		log.Error("Failed to parse config file", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	if err := config.parseDurations(); err != nil {
		log.Error("Invalid duration in config", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	if config.Dhan.AccessToken == "" {
		log.Error("Invalid configuration", map[string]interface{}{
			"error": "dhan access token is required",
		})
		os.Exit(1)
	}

	log.Info("Successfully loaded config", map[string]interface{}{
		"path": configPath,
	})

	return &config
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DHAN_ACCESS_TOKEN"); v != "" {
		c.Dhan.AccessToken = v
	}
	if v := os.Getenv("DHAN_CLIENT_ID"); v != "" {
		c.Dhan.ClientID = v
	}
	if v := os.Getenv("TIMESCALE_PASSWORD"); v != "" {
		c.Timescale.Password = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Pipeline.FetchInterval == "" {
		c.Pipeline.FetchInterval = "30s"
	}
	if c.Pipeline.FetchPause == "" {
		c.Pipeline.FetchPause = "3s"
	}
	if c.Pipeline.CompactionInterval == "" {
		c.Pipeline.CompactionInterval = "24h"
	}
	if c.Pipeline.AuditInterval == "" {
		c.Pipeline.AuditInterval = "10m"
	}
	if c.Pipeline.BucketMinutes == 0 {
		c.Pipeline.BucketMinutes = 5
	}
	if c.Pipeline.StrikeWindow == 0 {
		c.Pipeline.StrikeWindow = 40
	}
	if c.Timescale.MaxConnLifetime == "" {
		c.Timescale.MaxConnLifetime = "1h"
	}
	if c.Timescale.MaxConnIdleTime == "" {
		c.Timescale.MaxConnIdleTime = "30m"
	}
	if c.Redis.ConnectTimeout == "" {
		c.Redis.ConnectTimeout = "5s"
	}
	if c.APIPort == "" {
		c.APIPort = "8080"
	}
}

func (c *Config) parseDurations() error {
	if err := c.Timescale.ToDuration(); err != nil {
		return err
	}
	if err := c.Redis.ToDuration(); err != nil {
		return err
	}
	return c.Pipeline.ToDuration()
}

// ToDuration converts the string values to time.Duration after unmarshaling
func (t *TimescaleConfig) ToDuration() error {
	var err error
	t.maxConnLifetimeDuration, err = time.ParseDuration(t.MaxConnLifetime)
	if err != nil {
		return fmt.Errorf("invalid max_conn_lifetime duration: %w", err)
	}

	t.maxConnIdleTimeDuration, err = time.ParseDuration(t.MaxConnIdleTime)
	if err != nil {
		return fmt.Errorf("invalid max_conn_idle_time duration: %w", err)
	}

	return nil
}

func (t *TimescaleConfig) GetMaxConnLifetime() time.Duration {
	return t.maxConnLifetimeDuration
}

func (t *TimescaleConfig) GetMaxConnIdleTime() time.Duration {
	return t.maxConnIdleTimeDuration
}

func (r *RedisConfig) ToDuration() error {
	var err error
	r.connectTimeoutDuration, err = time.ParseDuration(r.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("invalid connect_timeout duration: %w", err)
	}
	return nil
}

func (r *RedisConfig) GetConnectTimeout() time.Duration {
	return r.connectTimeoutDuration
}

func (p *PipelineConfig) ToDuration() error {
	var err error
	p.fetchIntervalDuration, err = time.ParseDuration(p.FetchInterval)
	if err != nil {
		return fmt.Errorf("invalid fetch_interval duration: %w", err)
	}

	p.fetchPauseDuration, err = time.ParseDuration(p.FetchPause)
	if err != nil {
		return fmt.Errorf("invalid fetch_pause duration: %w", err)
	}

	p.compactionIntervalDuration, err = time.ParseDuration(p.CompactionInterval)
	if err != nil {
		return fmt.Errorf("invalid compaction_interval duration: %w", err)
	}

	p.auditIntervalDuration, err = time.ParseDuration(p.AuditInterval)
	if err != nil {
		return fmt.Errorf("invalid audit_interval duration: %w", err)
	}

	return nil
}

func (p *PipelineConfig) GetFetchInterval() time.Duration {
	return p.fetchIntervalDuration
}

func (p *PipelineConfig) GetFetchPause() time.Duration {
	return p.fetchPauseDuration
}

func (p *PipelineConfig) GetCompactionInterval() time.Duration {
	return p.compactionIntervalDuration
}

func (p *PipelineConfig) GetAuditInterval() time.Duration {
	return p.auditIntervalDuration
}
