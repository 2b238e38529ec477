package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 GRIDCHECK_VALIDATION_CHUNK_SIZE
const EnvPrefix = "GRIDCHECK"

// ErrInvalidConfig 配置不合法
var ErrInvalidConfig = errors.New("invalid config")

// Config 完整配置
type Config struct {
	Validation ValidationConfig `mapstructure:"validation"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	IDGen      IDGenConfig      `mapstructure:"idgen"`
}

// ValidationConfig 批量验证默认参数
type ValidationConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size"`
	Timeout       time.Duration `mapstructure:"timeout"`        // 0 表示不限
	MaxViolations int           `mapstructure:"max_violations"` // 每个单元格的违规上限，0 表示不限
}

// LogConfig 日志
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug/info/warn/error
	Format     string `mapstructure:"format"` // json/console
	File       string `mapstructure:"file"`   // 为空时输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StoreConfig 结果持久化数据库，Driver 为空表示不启用
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite/mysql/postgres
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 最近一次结果的缓存，Addr 为空表示不启用
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// IDGenConfig 运行ID生成器
type IDGenConfig struct {
	DatacenterID int64 `mapstructure:"datacenter_id"`
	WorkerID     int64 `mapstructure:"worker_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("validation.chunk_size", 100)
	v.SetDefault("validation.timeout", time.Duration(0))
	v.SetDefault("validation.max_violations", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("store.driver", "")
	v.SetDefault("store.dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "gridcheck")
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("idgen.datacenter_id", 0)
	v.SetDefault("idgen.worker_id", 0)
}

// Default 默认配置
func Default() *Config {
	cfg, _ := decode(newViper())
	return cfg
}

// Load 读取配置文件（path 为空时只使用默认值和环境变量），环境变量优先
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate 检查配置
func (c *Config) Validate() error {
	var errs []error
	if c.Validation.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("validation.chunk_size must be positive, got %d", c.Validation.ChunkSize))
	}
	if c.Validation.Timeout < 0 {
		errs = append(errs, fmt.Errorf("validation.timeout must not be negative, got %s", c.Validation.Timeout))
	}
	if c.Validation.MaxViolations < 0 {
		errs = append(errs, fmt.Errorf("validation.max_violations must not be negative, got %d", c.Validation.MaxViolations))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug/info/warn/error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json/console", c.Log.Format))
	}

	switch c.Store.Driver {
	case "":
	case "sqlite", "mysql", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of sqlite/mysql/postgres", c.Store.Driver))
	}

	if c.Redis.Addr != "" && c.Redis.TTL < 0 {
		errs = append(errs, fmt.Errorf("redis.ttl must not be negative, got %s", c.Redis.TTL))
	}
	if c.IDGen.DatacenterID < 0 || c.IDGen.DatacenterID > 31 {
		errs = append(errs, fmt.Errorf("idgen.datacenter_id must be in [0, 31], got %d", c.IDGen.DatacenterID))
	}
	if c.IDGen.WorkerID < 0 || c.IDGen.WorkerID > 31 {
		errs = append(errs, fmt.Errorf("idgen.worker_id must be in [0, 31], got %d", c.IDGen.WorkerID))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
