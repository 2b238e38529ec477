package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"katydid-common-validation/pkg/config"
	"katydid-common-validation/pkg/idgen"
	"katydid-common-validation/pkg/validation"
)

// RedisClient RedisSink 用到的命令，*redis.Client 满足该接口
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// NewRedisClient 按配置创建客户端
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Summary 缓存在 redis 中的最近一次运行汇总
type Summary struct {
	RunID           idgen.ID       `json:"run_id"`
	Dataset         string         `json:"dataset"`
	Scope           string         `json:"scope"`
	RegistryVersion uint64         `json:"registry_version"`
	TotalCells      int            `json:"total_cells"`
	ProcessedCells  int            `json:"processed_cells"`
	ValidCells      int            `json:"valid_cells"`
	InvalidCells    int            `json:"invalid_cells"`
	Violations      int            `json:"violations"`
	BySeverity      map[string]int `json:"by_severity,omitempty"`
	DurationMs      int64          `json:"duration_ms"`
	WasCancelled    bool           `json:"was_cancelled"`
	WasTimedOut     bool           `json:"was_timed_out"`
	FinishedAt      time.Time      `json:"finished_at"`
}

// RedisSink 把每个数据集最近一次运行的汇总写入 redis，供其他进程快速查询
type RedisSink struct {
	client  RedisClient
	key     string
	dataset string
	ttl     time.Duration
	now     func() time.Time
}

var _ validation.ResultSink = (*RedisSink)(nil)

// NewRedisSink 创建，key 为 prefix:dataset:latest；ttl 为 0 表示不过期
func NewRedisSink(client RedisClient, prefix, dataset string, ttl time.Duration) *RedisSink {
	return &RedisSink{
		client:  client,
		key:     fmt.Sprintf("%s:%s:latest", prefix, dataset),
		dataset: dataset,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key 缓存键
func (s *RedisSink) Key() string {
	return s.key
}

// Save 实现 validation.ResultSink
func (s *RedisSink) Save(ctx context.Context, runID idgen.ID, result *validation.BatchResult) error {
	summary := Summary{
		RunID:           runID,
		Dataset:         s.dataset,
		Scope:           result.Scope.String(),
		RegistryVersion: result.RegistryVersion,
		TotalCells:      result.TotalCells,
		ProcessedCells:  result.ProcessedCells,
		ValidCells:      result.ValidCells,
		InvalidCells:    result.InvalidCells,
		Violations:      len(result.Violations),
		DurationMs:      result.Duration.Milliseconds(),
		WasCancelled:    result.WasCancelled,
		WasTimedOut:     result.WasTimedOut,
		FinishedAt:      s.now().UTC(),
	}
	if len(result.Violations) > 0 {
		summary.BySeverity = make(map[string]int)
		for _, v := range result.Violations {
			summary.BySeverity[v.Severity.String()]++
		}
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Latest 读取最近一次运行的汇总，没有时返回 ErrNotFound
func (s *RedisSink) Latest(ctx context.Context) (*Summary, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return &summary, nil
}
