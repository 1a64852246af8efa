// Package middleware 提供 HTTP 响应体压缩中间件。
//
// 中间件按每个响应做一次内容编码协商（gzip/br/zstd），对达到阈值的
// 响应体做流式压缩，并维持协议语义不变：头部改写、trailer 透传、
// SSE 等流式响应的冲刷时机。用法：
//
//	m, err := middleware.New(middleware.DefaultConfig())
//	...
//	srv := &http.Server{Handler: m.Wrap(mux)}
package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-compress-go/internal/compress/codec"
	"github.com/lk2023060901/zeus-compress-go/internal/compress/contenttype"
	"github.com/lk2023060901/zeus-compress-go/internal/compress/encoding"
	"github.com/lk2023060901/zeus-compress-go/internal/compress/transform"
	"github.com/lk2023060901/zeus-compress-go/internal/pool/bytebuffer"
	"github.com/lk2023060901/zeus-compress-go/pkg/log"
	"github.com/lk2023060901/zeus-compress-go/pkg/metrics"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/conc"
)

// Option 调整中间件的运行参数，在配置校验之前应用。
type Option func(*Middleware)

// WithMetrics 将中间件指标注册到给定 Registerer。
func WithMetrics(r prometheus.Registerer) Option {
	return func(m *Middleware) {
		m.registerer = r
	}
}

// WithMinSize 覆盖压缩阈值。
func WithMinSize(n int) Option {
	return func(m *Middleware) {
		m.cfg.MinSize = n
	}
}

// WithCodecs 覆盖启用的算法列表。
func WithCodecs(tokens ...string) Option {
	return func(m *Middleware) {
		m.cfg.Codecs = tokens
	}
}

// WithSharedPool 启用容量为 size 的进程级共享压缩协程池。
func WithSharedPool(size int) Option {
	return func(m *Middleware) {
		m.cfg.PoolSize = size
	}
}

// Middleware 为压缩中间件实例，可同时包装多个 handler，并发安全。
type Middleware struct {
	cfg  Config
	opts transform.Options

	pool       *conc.Pool[[]byte]
	buffers    *bytebuffer.Pool
	registerer prometheus.Registerer
}

// New 根据配置创建中间件。
// 配置非法时返回 ErrConfigInvalid。
func New(cfg Config, opts ...Option) (*Middleware, error) {
	m := &Middleware{
		cfg:     cfg,
		buffers: &bytebuffer.Pool{},
	}
	for _, o := range opts {
		o(m)
	}

	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	enabled, err := m.cfg.enabledKinds()
	if err != nil {
		return nil, err
	}
	cfg = m.cfg

	if cfg.PoolSize > 0 {
		m.pool = conc.NewPool[[]byte](cfg.PoolSize, conc.WithPreAlloc(true))
	}
	if m.registerer != nil {
		metrics.Register(m.registerer)
		metrics.RegisterBufferPool(m.registerer, m.buffers.Stats)
	}

	m.opts = transform.Options{
		Negotiate: encoding.Options{
			MinSize:           cfg.MinSize,
			Enabled:           enabled,
			FlushContentTypes: normalizeContentTypes(cfg.FlushContentTypes),
			FlushHeaders:      cfg.FlushHeaders,
		},
		Codec: codec.Options{
			GzipLevel:       cfg.GzipLevel,
			BrotliQuality:   cfg.BrotliQuality,
			ZstdFastest:     cfg.ZstdFastest,
			ZstdConcurrency: cfg.ZstdConcurrency,
		},
		Pool:    m.pool,
		Buffers: m.buffers,
	}

	log.Info("compression middleware initialized",
		zap.Int("minSize", cfg.MinSize),
		zap.Any("codecs", enabled.Collect()),
		zap.Int("poolSize", cfg.PoolSize))
	return m, nil
}

// Wrap 包装 next，返回带压缩能力的 handler。
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		tw := transform.New(rw, req, m.opts)

		defer func() {
			if r := recover(); r != nil {
				tw.Abort()
				panic(r)
			}
		}()
		next.ServeHTTP(tw, req)

		if err := tw.Close(); err != nil {
			if !tw.Written() {
				http.Error(rw, http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError)
				return
			}
			// 头部已发出，无法改写状态码。中断连接，
			// 避免客户端把被截断的压缩流当作完整响应。
			panic(http.ErrAbortHandler)
		}
	})
}

// Close 释放中间件持有的共享资源。
// 调用后实例不应再包装新的请求。
func (m *Middleware) Close() {
	if m.pool != nil {
		m.pool.Release()
	}
	hits, misses := m.buffers.Stats()
	log.Debug("compression middleware closed",
		zap.Int64("bufferHits", hits),
		zap.Int64("bufferMisses", misses))
}

// Handler 以默认配置包装 next，适合零配置接入。
// opts 非法导致的错误属于编程错误，直接 panic。
func Handler(next http.Handler, opts ...Option) http.Handler {
	m, err := New(DefaultConfig(), opts...)
	if err != nil {
		panic(err)
	}
	return m.Wrap(next)
}

// normalizeContentTypes 把配置的媒体类型统一归一化，协商阶段直接等值比较。
func normalizeContentTypes(contentTypes []string) []string {
	out := make([]string, 0, len(contentTypes))
	for _, ct := range contentTypes {
		if n := contenttype.Normalize(ct); n != "" {
			out = append(out, n)
		}
	}
	return out
}
