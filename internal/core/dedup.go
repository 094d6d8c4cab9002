package core

import (
	"sync"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// DefaultDedupCapacity 去重窗口默认容量
const DefaultDedupCapacity = 10000

// DedupBuffer 最近见过的记录的有界集合
// 达到容量后按先进先出淘汰最旧的记录,本身不加锁
type DedupBuffer struct {
	capacity int
	ring     []models.Record // 环形缓冲区,head 指向最旧的记录
	head     int
	members  map[models.Record]struct{}
}

// NewDedupBuffer 创建去重窗口
func NewDedupBuffer(capacity int) *DedupBuffer {
	if capacity < 1 {
		capacity = DefaultDedupCapacity
	}
	return &DedupBuffer{
		capacity: capacity,
		ring:     make([]models.Record, 0, min(capacity, 1024)),
		members:  make(map[models.Record]struct{}),
	}
}

// Offer 记录已在窗口中时返回 false,否则加入窗口并返回 true
func (b *DedupBuffer) Offer(rec models.Record) bool {
	if _, ok := b.members[rec]; ok {
		return false
	}

	if len(b.ring) < b.capacity {
		b.ring = append(b.ring, rec)
	} else {
		delete(b.members, b.ring[b.head])
		b.ring[b.head] = rec
		b.head = (b.head + 1) % b.capacity
	}
	b.members[rec] = struct{}{}
	return true
}

// Contains 记录是否在窗口中
func (b *DedupBuffer) Contains(rec models.Record) bool {
	_, ok := b.members[rec]
	return ok
}

// Len 窗口中的记录数
func (b *DedupBuffer) Len() int {
	return len(b.ring)
}

// Snapshot 按从新到旧的顺序返回窗口内容
func (b *DedupBuffer) Snapshot() []models.Record {
	n := len(b.ring)
	out := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		// 最新的记录位于 head 之前
		idx := (b.head - 1 - i + 2*n) % n
		out = append(out, b.ring[idx])
	}
	return out
}

// RecordGate 去重窗口、过滤器与推送队列的组合
// 抓取协程写入,推送协程取出,所有复合操作在同一把锁下完成
type RecordGate struct {
	mu      sync.Mutex
	seen    *DedupBuffer
	filters *FilterEngine
	queue   []models.Record
}

// NewRecordGate 创建记录闸门
func NewRecordGate(capacity int, filters *FilterEngine) *RecordGate {
	return &RecordGate{
		seen:    NewDedupBuffer(capacity),
		filters: filters,
	}
}

// Filters 闸门使用的过滤器
func (g *RecordGate) Filters() *FilterEngine {
	return g.filters
}

// Offer 依次做去重和过滤
// accepted 表示记录是新的,matched 表示记录通过过滤并进入推送队列
func (g *RecordGate) Offer(rec models.Record) (accepted, matched bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	accepted, matched = g.admitLocked(rec)
	if matched {
		g.queue = append(g.queue, rec)
	}
	return accepted, matched
}

// Check 与 Offer 相同地去重和过滤,但不写入推送队列
// 用于由调用方自行收集记录的一次性扫描
func (g *RecordGate) Check(rec models.Record) (accepted, matched bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admitLocked(rec)
}

func (g *RecordGate) admitLocked(rec models.Record) (accepted, matched bool) {
	if !g.seen.Offer(rec) {
		return false, false
	}
	return true, g.filters.Matches(rec)
}

// Drain 取出推送队列中的全部记录,最近加入的在前
func (g *RecordGate) Drain() []models.Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.queue)
	if n == 0 {
		return nil
	}
	out := make([]models.Record, n)
	for i, rec := range g.queue {
		out[n-1-i] = rec
	}
	g.queue = g.queue[:0]
	return out
}

// Pending 推送队列长度
func (g *RecordGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// SeenCount 去重窗口中的记录数
func (g *RecordGate) SeenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Len()
}

// Seen 去重窗口快照,从新到旧,用于导出
func (g *RecordGate) Seen() []models.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Snapshot()
}
