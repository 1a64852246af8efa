package codec

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/zeus-compress-go/pkg/util/hardware"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/merr"
)

// zstdPools 按 (级别, 并发度) 缓存 zstd.Encoder。
// zstd.Encoder 内部持有编码窗口和并发 worker，复用的收益最大。
var zstdPools sync.Map // map[zstdPoolKey]*sync.Pool

type zstdPoolKey struct {
	level       zstd.EncoderLevel
	concurrency int
}

func zstdPool(key zstdPoolKey) *sync.Pool {
	if p, ok := zstdPools.Load(key); ok {
		return p.(*sync.Pool)
	}
	p, _ := zstdPools.LoadOrStore(key, &sync.Pool{})
	return p.(*sync.Pool)
}

// newZstdWriter 返回一个写入 dst 的 zstd encoder 及其归还函数。
func newZstdWriter(dst io.Writer, opts Options) (flushWriter, func(flushWriter), error) {
	level := zstd.SpeedDefault
	if opts.ZstdFastest {
		level = zstd.SpeedFastest
	}

	concurrency := opts.ZstdConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if max := hardware.GetCPUNum(); concurrency > max {
		concurrency = max
	}

	key := zstdPoolKey{level: level, concurrency: concurrency}
	pool := zstdPool(key)
	if v := pool.Get(); v != nil {
		w := v.(*zstd.Encoder)
		w.Reset(dst)
		return w, func(w flushWriter) { pool.Put(w) }, nil
	}

	w, err := zstd.NewWriter(dst,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(concurrency),
	)
	if err != nil {
		return nil, nil, merr.WrapErrCodecCreate(err, KindZstd.Token())
	}
	return w, func(w flushWriter) { pool.Put(w) }, nil
}
