// Package bytebuffer 实现了一个 bytes.Buffer 对象池，用于降低 GC 压力。
//
// 说明：
//   - 不同用途可以共享同一个 Pool，容量过大的缓冲区不会被回收，避免内存被长期钉住；
//   - Pool 内部由 sync.Pool 负责同步，可被多个响应并发使用。
package bytebuffer

import (
	"bytes"
	"sync"

	"go.uber.org/atomic"
)

const (
	// defaultSize 为新建缓冲区的初始容量。
	defaultSize = 4 * 1024
	// maxRecycleSize 为允许回收的最大缓冲区容量，超过的缓冲区直接丢给 GC。
	maxRecycleSize = 64 * 1024
)

// Pool 表示 bytes.Buffer 的对象池。
type Pool struct {
	pool sync.Pool

	hits   atomic.Int64
	misses atomic.Int64
}

var builtinPool Pool

// Get 从默认池中取出一个空缓冲区。
func Get() *bytes.Buffer { return builtinPool.Get() }

// Put 将缓冲区归还到默认池。
func Put(b *bytes.Buffer) { builtinPool.Put(b) }

// Stats 返回默认池的命中/未命中次数。
func Stats() (hits, misses int64) { return builtinPool.Stats() }

// Get 取出一个空缓冲区。
func (p *Pool) Get() *bytes.Buffer {
	v := p.pool.Get()
	if v == nil {
		p.misses.Inc()
		return bytes.NewBuffer(make([]byte, 0, defaultSize))
	}
	p.hits.Inc()
	return v.(*bytes.Buffer)
}

// Put 归还缓冲区。
// nil 或容量超过 maxRecycleSize 的缓冲区会被忽略。
func (p *Pool) Put(b *bytes.Buffer) {
	if b == nil || b.Cap() > maxRecycleSize {
		return
	}
	b.Reset()
	p.pool.Put(b)
}

// Stats 返回池的命中/未命中次数。
func (p *Pool) Stats() (hits, misses int64) {
	return p.hits.Load(), p.misses.Load()
}
