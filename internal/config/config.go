// Package config loads service settings from an optional YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/cart-sync/internal/core/domain"
)

const EnvConfigPath = "CARTSYNC_CONFIG"

type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	GRPCAddr  string `yaml:"grpc_addr"`
	MySQLDSN  string `yaml:"mysql_dsn"`
	RedisAddr string `yaml:"redis_addr"`

	WorkerCount int `yaml:"worker_count"`
	QueueSize   int `yaml:"queue_size"`

	StorageKey        string        `yaml:"storage_key"`
	StorageTTL        time.Duration `yaml:"storage_ttl"`
	SyncTopic         string        `yaml:"sync_topic"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	IgnoreOwnMessages bool          `yaml:"ignore_own_messages"`
	Broadcast         bool          `yaml:"broadcast"`

	ValidationTimeout time.Duration `yaml:"validation_timeout"`
	SessionID         string        `yaml:"session_id"`

	Limits  LimitsConfig    `yaml:"limits"`
	Catalog []ProductConfig `yaml:"catalog"`
	Log     LogConfig       `yaml:"log"`
}

// LimitsConfig mirrors domain.Limits; prices are decimal strings.
type LimitsConfig struct {
	MaxItems             int    `yaml:"max_items"`
	MaxTotalItems        int    `yaml:"max_total_items"`
	MaxTotalPrice        string `yaml:"max_total_price"`
	MaxQuantityPerItem   int    `yaml:"max_quantity_per_item"`
	MinPrice             string `yaml:"min_price"`
	MaxPricePerItem      string `yaml:"max_price_per_item"`
	MaxNameLength        int    `yaml:"max_name_length"`
	BulkQuantityHint     int    `yaml:"bulk_quantity_hint"`
	SplitOrderHint       int    `yaml:"split_order_hint"`
	MaxPriceSwingPercent string `yaml:"max_price_swing_percent"`
	HistorySize          int    `yaml:"history_size"`
}

type ProductConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Image string `yaml:"image"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		GRPCAddr:          ":50051",
		MySQLDSN:          "root:root@tcp(localhost:3306)/cartsync?parseTime=true",
		RedisAddr:         "localhost:6379",
		WorkerCount:       4,
		QueueSize:         10000,
		StorageKey:        "cart-storage",
		StorageTTL:        30 * 24 * time.Hour,
		SyncTopic:         "cart-sync",
		SettleDelay:       100 * time.Millisecond,
		IgnoreOwnMessages: true,
		Broadcast:         true,
		SessionID:         "local",
		ValidationTimeout: 3 * time.Second,
		Catalog: []ProductConfig{
			{ID: "sku-1", Name: "Protein Bar", Price: "2.49", Image: "https://img.example.com/sku-1.png"},
			{ID: "sku-2", Name: "Oat Granola", Price: "6.90", Image: "https://img.example.com/sku-2.png"},
			{ID: "sku-3", Name: "Whey Isolate 1kg", Price: "39.00", Image: "https://img.example.com/sku-3.png"},
			{ID: "sku-4", Name: "Shaker Bottle", Price: "9.99", Image: "https://img.example.com/sku-4.png"},
		},
	}
}

// Load reads the file named by CARTSYNC_CONFIG, if set, over the defaults and
// then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.MySQLDSN = getEnv("MYSQL_DSN", c.MySQLDSN)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.StorageKey = getEnv("STORAGE_KEY", c.StorageKey)
	c.SyncTopic = getEnv("SYNC_TOPIC", c.SyncTopic)
	c.SessionID = getEnv("SESSION_ID", c.SessionID)

	var err error
	if c.WorkerCount, err = getEnvInt("WORKER_COUNT", c.WorkerCount); err != nil {
		return err
	}
	if c.QueueSize, err = getEnvInt("QUEUE_SIZE", c.QueueSize); err != nil {
		return err
	}
	if c.SettleDelay, err = getEnvDuration("SETTLE_DELAY", c.SettleDelay); err != nil {
		return err
	}
	if c.ValidationTimeout, err = getEnvDuration("VALIDATION_TIMEOUT", c.ValidationTimeout); err != nil {
		return err
	}
	if c.Broadcast, err = getEnvBool("BROADCAST", c.Broadcast); err != nil {
		return err
	}
	if c.Log.Development, err = getEnvBool("LOG_DEVELOPMENT", c.Log.Development); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.StorageKey == "" {
		errs = append(errs, errors.New("storage_key must not be empty"))
	}
	if c.SessionID == "" {
		errs = append(errs, errors.New("session_id must not be empty"))
	}
	if c.SyncTopic == "" {
		errs = append(errs, errors.New("sync_topic must not be empty"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if c.SettleDelay <= 0 {
		errs = append(errs, fmt.Errorf("settle_delay must be positive, got %s", c.SettleDelay))
	}
	if _, err := c.ValidatorLimits(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Products(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidatorLimits overlays the configured limits on domain.DefaultLimits.
func (c Config) ValidatorLimits() (domain.Limits, error) {
	l := domain.DefaultLimits()
	cl := c.Limits

	setInt(&l.MaxItems, cl.MaxItems)
	setInt(&l.MaxTotalItems, cl.MaxTotalItems)
	setInt(&l.MaxQuantityPerItem, cl.MaxQuantityPerItem)
	setInt(&l.MaxNameLength, cl.MaxNameLength)
	setInt(&l.BulkQuantityHint, cl.BulkQuantityHint)
	setInt(&l.SplitOrderHint, cl.SplitOrderHint)
	setInt(&l.HistorySize, cl.HistorySize)

	decimals := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"max_total_price", cl.MaxTotalPrice, &l.MaxTotalPrice},
		{"min_price", cl.MinPrice, &l.MinPrice},
		{"max_price_per_item", cl.MaxPricePerItem, &l.MaxPricePerItem},
		{"max_price_swing_percent", cl.MaxPriceSwingPercent, &l.MaxPriceSwingPercent},
	}
	for _, d := range decimals {
		if d.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(d.raw)
		if err != nil {
			return domain.Limits{}, fmt.Errorf("limits.%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return l, nil
}

func (c Config) Products() ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(c.Catalog))
	for i, p := range c.Catalog {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog[%d] %s: price: %w", i, p.ID, err)
		}
		out = append(out, domain.Product{ID: p.ID, Name: p.Name, Price: price, ImageRef: p.Image})
	}
	return out, nil
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
