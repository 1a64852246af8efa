package codec

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/lk2023060901/zeus-compress-go/pkg/util/merr"
)

// gzipPools 按压缩级别缓存 gzip.Writer，避免每个响应重复分配压缩窗口。
var gzipPools sync.Map // map[int]*sync.Pool

func gzipPool(level int) *sync.Pool {
	if p, ok := gzipPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := gzipPools.LoadOrStore(level, &sync.Pool{})
	return p.(*sync.Pool)
}

// newGzipWriter 返回一个写入 dst 的 gzip writer 及其归还函数。
func newGzipWriter(dst io.Writer, opts Options) (flushWriter, func(flushWriter), error) {
	level := opts.GzipLevel
	if level == 0 {
		level = gzip.DefaultCompression
	}

	pool := gzipPool(level)
	if v := pool.Get(); v != nil {
		w := v.(*gzip.Writer)
		w.Reset(dst)
		return w, func(w flushWriter) { pool.Put(w) }, nil
	}

	w, err := gzip.NewWriterLevel(dst, level)
	if err != nil {
		return nil, nil, merr.WrapErrCodecCreate(err, KindGzip.Token())
	}
	return w, func(w flushWriter) { pool.Put(w) }, nil
}
