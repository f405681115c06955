// Package config loads and validates the YAML configuration that drives a
// televkvpn server or client process: which carrier to tunnel over, the
// virtual subnet, the pre-shared key, and the optional Redis/Postgres/
// Prometheus integrations.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete televkvpn process configuration.
type Config struct {
	TransportType      string   `yaml:"transport_type"`
	Telegram           TelegramConfig `yaml:"telegram"`
	VK                 VKConfig       `yaml:"vk"`
	TAPInterfaceName   string   `yaml:"tap_interface_name"`
	ServerIP           string   `yaml:"server_ip"`
	ClientIP           string   `yaml:"client_ip"`
	Netmask            string   `yaml:"netmask"`
	MTU                int      `yaml:"mtu"`
	Subnet             string   `yaml:"subnet"`
	SubnetMask         string   `yaml:"subnet_mask"`
	EncryptionKey      string   `yaml:"encryption_key"`
	CompressionEnabled bool     `yaml:"compression_enabled"`
	BatchInterval      float64  `yaml:"batch_interval"`
	MaxBatchSize       int      `yaml:"max_batch_size"`
	TelegramSubnets    []string `yaml:"telegram_subnets"`
	LocationLabel      string   `yaml:"location_label"`
	DNSServers         []string `yaml:"dns_servers"`

	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig holds Telegram Bot API / MTProto credentials.
type TelegramConfig struct {
	APIID    int    `yaml:"api_id"`
	APIHash  string `yaml:"api_hash"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`

	// SendQueueCap overrides the default 5000-packet send queue cap (spec
	// the two transports' caps are tuned differently and both
	// must stay independently configurable).
	SendQueueCap int `yaml:"send_queue_cap"`
}

// VKConfig holds VKontakte API credentials.
type VKConfig struct {
	Login  string `yaml:"login"`
	Token  string `yaml:"token"`

	// SendQueueCap overrides the default 500-packet send queue cap.
	SendQueueCap int `yaml:"send_queue_cap"`
	PeerID string `yaml:"peer_id"`
	AppID  int    `yaml:"app_id"`
}

// RedisConfig enables the optional receive-dedup cache. Host empty means
// disabled; the tunnel falls back to an in-process LRU.
type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig enables the optional periodic stats sink. Host empty
// means disabled.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

// MetricsConfig controls the optional Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig mirrors the ambient logger's tunables.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// defaultTelegramSubnets lists the Telegram and VKontakte/Mail.ru CIDR
// ranges that must bypass the tunnel's default route, since the control
// channel itself rides over the carrier's own network.
var defaultTelegramSubnets = []string{
	"91.108.4.0/22",
	"91.108.8.0/22",
	"91.108.12.0/22",
	"91.108.16.0/22",
	"91.108.56.0/22",
	"149.154.160.0/20",
	"149.154.164.0/22",
	"149.154.168.0/22",
	"149.154.172.0/22",
	"87.240.128.0/18",
	"93.186.224.0/20",
	"95.142.192.0/20",
	"185.32.248.0/22",
	"188.93.56.0/24",
	"128.140.168.0/21",
	"195.218.169.0/24",
	"79.137.183.0/24",
}

// Load reads and validates configuration from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.TransportType == "" {
		c.TransportType = "telegram"
	}
	if c.TAPInterfaceName == "" {
		c.TAPInterfaceName = "televk0"
	}
	if c.MTU == 0 {
		c.MTU = 1280
	}
	if c.Netmask == "" {
		c.Netmask = "255.255.255.0"
	}
	if c.SubnetMask == "" {
		c.SubnetMask = c.Netmask
	}
	if c.LocationLabel == "" {
		c.LocationLabel = "Unknown PC"
	}
	if c.BatchInterval == 0 {
		c.BatchInterval = 0.05
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 512 * 1024
	}
	if len(c.TelegramSubnets) == 0 {
		c.TelegramSubnets = append([]string(nil), defaultTelegramSubnets...)
	}
	if len(c.DNSServers) == 0 {
		c.DNSServers = []string{"1.1.1.1", "8.8.8.8"}
	}

	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 5 * time.Minute
	}

	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.FlushInterval == 0 {
		c.Postgres.FlushInterval = 30 * time.Second
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9477"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
}

func (c *Config) validate() error {
	switch c.TransportType {
	case "telegram", "vk":
	default:
		return fmt.Errorf("transport_type must be 'telegram' or 'vk', got %q", c.TransportType)
	}

	if c.TransportType == "telegram" {
		if c.Telegram.BotToken == "" && c.Telegram.APIID == 0 {
			return fmt.Errorf("telegram transport requires bot_token or api_id/api_hash")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required")
		}
	}
	if c.TransportType == "vk" {
		if c.VK.Token == "" {
			return fmt.Errorf("vk.token is required")
		}
		if c.VK.PeerID == "" {
			return fmt.Errorf("vk.peer_id is required")
		}
	}

	if c.ServerIP == "" || c.ClientIP == "" {
		return fmt.Errorf("server_ip and client_ip are required")
	}
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("encryption_key must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}
	if c.MTU < 576 || c.MTU > 9000 {
		return fmt.Errorf("mtu %d out of supported range [576, 9000]", c.MTU)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// IPForRole returns the tunnel IP this process should assign to the TAP
// interface, depending on whether it is acting as server or client.
func (c *Config) IPForRole(role string) string {
	if role == "server" {
		return c.ServerIP
	}
	return c.ClientIP
}

// Write marshals cfg to YAML and writes it to path, for `televkvpn init`.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// Default returns a ready-to-edit configuration with every default applied,
// used to seed a new config file.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}
