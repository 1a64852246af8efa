package codec

import (
	"io"
	"sync"

	"github.com/andybalholm/brotli"
)

// brotliPools 按质量参数缓存 brotli.Writer。
var brotliPools sync.Map // map[int]*sync.Pool

func brotliPool(quality int) *sync.Pool {
	if p, ok := brotliPools.Load(quality); ok {
		return p.(*sync.Pool)
	}
	p, _ := brotliPools.LoadOrStore(quality, &sync.Pool{})
	return p.(*sync.Pool)
}

// newBrotliWriter 返回一个写入 dst 的 brotli writer 及其归还函数。
func newBrotliWriter(dst io.Writer, opts Options) (flushWriter, func(flushWriter), error) {
	quality := opts.BrotliQuality
	if quality == 0 {
		quality = brotli.DefaultCompression
	}

	pool := brotliPool(quality)
	if v := pool.Get(); v != nil {
		w := v.(*brotli.Writer)
		w.Reset(dst)
		return w, func(w flushWriter) { pool.Put(w) }, nil
	}

	w := brotli.NewWriterLevel(dst, quality)
	return w, func(w flushWriter) { pool.Put(w) }, nil
}
