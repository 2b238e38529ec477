package validation

import (
	"time"

	"go.uber.org/zap"

	"katydid-common-validation/pkg/config"
	"katydid-common-validation/pkg/idgen"
)

// DefaultChunkSize 默认每个分块的行数
const DefaultChunkSize = 100

type options struct {
	logger        *zap.Logger
	maxViolations int
	chunkSize     int
	timeout       time.Duration
	sinks         []ResultSink
	store         *OutcomeStore
	ids           *idgen.Generator
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		chunkSize: DefaultChunkSize,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Option 评估器与引擎的选项
type Option func(*options)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxViolations 每个单元格最多保留的违规数，0 表示不限
func WithMaxViolations(max int) Option {
	return func(o *options) {
		if max >= 0 {
			o.maxViolations = max
		}
	}
}

// WithChunkSize 批量验证的默认分块行数
func WithChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithTimeout 批量验证的默认超时，0 表示不限
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout >= 0 {
			o.timeout = timeout
		}
	}
}

// WithResultSink 添加结果接收者
func WithResultSink(sinks ...ResultSink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithOutcomeStore 批量验证结束后把处理过的行的结果写入 store
func WithOutcomeStore(store *OutcomeStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithIDGenerator 设置运行ID生成器
func WithIDGenerator(ids *idgen.Generator) Option {
	return func(o *options) {
		o.ids = ids
	}
}

// FromConfig 把配置转换为选项
func FromConfig(cfg config.ValidationConfig) []Option {
	return []Option{
		WithChunkSize(cfg.ChunkSize),
		WithTimeout(cfg.Timeout),
		WithMaxViolations(cfg.MaxViolations),
	}
}
