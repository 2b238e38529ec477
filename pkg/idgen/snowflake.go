package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch 起始时间戳 (2024-01-01 00:00:00 UTC)，毫秒
	Epoch int64 = 1704067200000

	WorkerIDBits     = 5
	DatacenterIDBits = 5
	SequenceBits     = 12

	MaxWorkerID     = -1 ^ (-1 << WorkerIDBits)     // 31
	MaxDatacenterID = -1 ^ (-1 << DatacenterIDBits) // 31
	MaxSequence     = -1 ^ (-1 << SequenceBits)     // 4095

	WorkerIDShift     = SequenceBits
	DatacenterIDShift = SequenceBits + WorkerIDBits
	TimestampShift    = SequenceBits + WorkerIDBits + DatacenterIDBits

	// 等待下一毫秒时的休眠时间
	sleepDuration = 100 * time.Microsecond

	// 时钟回拨容忍时间（毫秒），范围内等待时钟追上，超过则报错
	clockBackwardTolerance = 5
)

// ID 批量验证运行ID
type ID int64

// String 十进制字符串
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 原始值
func (id ID) Int64() int64 {
	return int64(id)
}

// Info ID解析后的信息
type Info struct {
	Time         time.Time `json:"time"`
	DatacenterID int64     `json:"datacenter_id"`
	WorkerID     int64     `json:"worker_id"`
	Sequence     int64     `json:"sequence"`
}

// Parse 解析ID的各组成部分
func (id ID) Parse() (Info, error) {
	if id <= 0 {
		return Info{}, fmt.Errorf("%w: %d", ErrInvalidID, int64(id))
	}
	v := int64(id)
	return Info{
		Time:         time.UnixMilli((v >> TimestampShift) + Epoch).UTC(),
		DatacenterID: (v >> DatacenterIDShift) & MaxDatacenterID,
		WorkerID:     (v >> WorkerIDShift) & MaxWorkerID,
		Sequence:     v & MaxSequence,
	}, nil
}

// Generator Snowflake ID生成器，线程安全
// ID结构：时间戳(41位) | 数据中心ID(5位) | 工作机器ID(5位) | 序列号(12位)
type Generator struct {
	mu            sync.Mutex
	lastTimestamp int64
	sequence      int64

	// 预计算的 datacenterID 和 workerID 部分
	precomputed int64

	now func() int64
}

// New 创建生成器
func New(datacenterID, workerID int64) (*Generator, error) {
	if datacenterID < 0 || datacenterID > MaxDatacenterID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDatacenterID, datacenterID)
	}
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerID, workerID)
	}
	return &Generator{
		lastTimestamp: -1,
		sequence:      -1,
		precomputed:   (datacenterID << DatacenterIDShift) | (workerID << WorkerIDShift),
		now:           func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID 生成下一个ID
func (g *Generator) NextID() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := g.now()
	if timestamp < g.lastTimestamp {
		offset := g.lastTimestamp - timestamp
		if offset > clockBackwardTolerance {
			return 0, fmt.Errorf("%w: detected backward drift of %d ms", ErrClockMovedBackwards, offset)
		}
		timestamp = g.waitUntil(g.lastTimestamp)
	}

	if timestamp == g.lastTimestamp {
		if g.sequence >= MaxSequence {
			// 当前毫秒序列号耗尽
			timestamp = g.waitUntil(g.lastTimestamp + 1)
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = timestamp

	return ID(((timestamp - Epoch) << TimestampShift) | g.precomputed | g.sequence), nil
}

// waitUntil 等待直到时间戳不小于 target
func (g *Generator) waitUntil(target int64) int64 {
	timestamp := g.now()
	for timestamp < target {
		time.Sleep(sleepDuration)
		timestamp = g.now()
	}
	return timestamp
}
