package codec

import (
	"bytes"
	"io"

	"github.com/lk2023060901/zeus-compress-go/internal/pool/bytebuffer"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/merr"
)

// Kind 表示支持的压缩算法，是一个封闭集合。
//
// 设计目标：
//   - 编解码器在协商阶段一次性选定，之后不做任何运行时类型探测；
//   - 新算法需要在本包内注册，不开放第三方扩展（参见 KindFromToken）。
type Kind int

const (
	// KindGzip 对应 Content-Encoding: gzip。
	KindGzip Kind = iota + 1
	// KindBrotli 对应 Content-Encoding: br。
	KindBrotli
	// KindZstd 对应 Content-Encoding: zstd。
	KindZstd
)

// Token 返回该算法在 Content-Encoding 头中的标准 token。
func (k Kind) Token() string {
	switch k {
	case KindGzip:
		return "gzip"
	case KindBrotli:
		return "br"
	case KindZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

func (k Kind) String() string {
	return k.Token()
}

// Kinds 返回全部支持的算法，按服务端偏好从高到低排列。
func Kinds() []Kind {
	return []Kind{KindZstd, KindBrotli, KindGzip}
}

// Preference 返回服务端偏好序，数值越小优先级越高（zstd > br > gzip）。
func (k Kind) Preference() int {
	switch k {
	case KindZstd:
		return 0
	case KindBrotli:
		return 1
	case KindGzip:
		return 2
	default:
		return 1 << 30
	}
}

// KindFromToken 将 Accept-Encoding 中的 token 解析为 Kind。
// 兼容别名：x-gzip 视为 gzip，brotli 视为 br。
// identity、*、q 参数等协商语义由调用方处理，这里只做 token 映射。
func KindFromToken(token string) (Kind, bool) {
	switch token {
	case "gzip", "x-gzip":
		return KindGzip, true
	case "br", "brotli":
		return KindBrotli, true
	case "zstd":
		return KindZstd, true
	default:
		return 0, false
	}
}

// Encoder 抽象了“流式压缩”能力，对应一次响应的完整生命周期。
//
// 约定：
//   - Push 将一段明文送入编码器，返回当前可用的压缩输出（可能为空，
//     因为算法内部会缓冲，输入/输出的分块数量不必对应）；
//   - Flush 强制吐出当前所有可用输出，但不结束压缩流；
//   - Finish 结束压缩流并返回收尾输出（包含算法的 footer/校验和），
//     调用后实例不可再使用；
//   - Release 归还实例持有的全部资源，任何退出路径都必须调用，可重复调用。
//
// Encoder 实例由单个响应独占，本身不做并发保护。
type Encoder interface {
	Push(chunk []byte) ([]byte, error)
	Flush() ([]byte, error)
	Finish() ([]byte, error)
	Release()
}

// Options 控制各算法的编码参数。
// 零值表示使用各算法库的默认配置。
//
// 零值约定的代价：gzip 的存储档（gzip.NoCompression，级别 0）和
// brotli 的质量 0 档无法通过 Options 表达，0 一律落到库默认。
// 不需要压缩的响应由协商阶段决定跳过，而不是配一个零压缩档。
type Options struct {
	// GzipLevel 为 gzip 压缩级别，0 等价于 gzip.DefaultCompression（-1）。
	GzipLevel int
	// BrotliQuality 为 brotli 质量参数，0 等价于 brotli.DefaultCompression（6）。
	BrotliQuality int
	// ZstdFastest 为 true 时 zstd 使用 SpeedFastest，否则使用 SpeedDefault。
	ZstdFastest bool
	// ZstdConcurrency 为 zstd 编码并发度，0 表示单并发
	// （流式响应逐块压缩，更高并发只在大块输入时有收益）。
	ZstdConcurrency int
}

// New 为指定算法创建一个 Encoder。
// kind 非法时返回 ErrCodecUnsupported。
func New(kind Kind, opts Options) (Encoder, error) {
	var (
		w   flushWriter
		put func(flushWriter)
		err error
	)

	sink := bytebuffer.Get()

	switch kind {
	case KindGzip:
		w, put, err = newGzipWriter(sink, opts)
	case KindBrotli:
		w, put, err = newBrotliWriter(sink, opts)
	case KindZstd:
		w, put, err = newZstdWriter(sink, opts)
	default:
		err = merr.WrapErrCodecUnsupported(kind.Token())
	}
	if err != nil {
		bytebuffer.Put(sink)
		return nil, err
	}

	return &streamEncoder{
		kind: kind,
		sink: sink,
		w:    w,
		put:  put,
	}, nil
}

// flushWriter 是三种底层压缩 writer 的公共能力集合。
type flushWriter interface {
	io.Writer
	Flush() error
	Close() error
}

// streamEncoder 将底层压缩 writer 适配为 Push/Flush/Finish 契约。
//
// 底层 writer 将压缩输出写入 sink，三个操作在返回前把 sink 中已积累的
// 字节拷贝出来并清空，保证 sink 可以持续复用。
type streamEncoder struct {
	kind Kind
	sink *bytes.Buffer
	w    flushWriter
	put  func(flushWriter)

	closed   bool
	released bool
}

var _ Encoder = (*streamEncoder)(nil)

// Push 实现 Encoder.Push。
func (e *streamEncoder) Push(chunk []byte) ([]byte, error) {
	if e.closed {
		return nil, merr.WrapErrCodecClosed(e.kind.Token())
	}
	if _, err := e.w.Write(chunk); err != nil {
		return nil, merr.WrapErrCodecEncode(err, e.kind.Token())
	}
	return e.takeOutput(), nil
}

// Flush 实现 Encoder.Flush。
func (e *streamEncoder) Flush() ([]byte, error) {
	if e.closed {
		return nil, merr.WrapErrCodecClosed(e.kind.Token())
	}
	if err := e.w.Flush(); err != nil {
		return nil, merr.WrapErrCodecFlush(err, e.kind.Token())
	}
	return e.takeOutput(), nil
}

// Finish 实现 Encoder.Finish。
func (e *streamEncoder) Finish() ([]byte, error) {
	if e.closed {
		return nil, merr.WrapErrCodecClosed(e.kind.Token())
	}
	e.closed = true
	if err := e.w.Close(); err != nil {
		return nil, merr.WrapErrCodecFinish(err, e.kind.Token())
	}
	return e.takeOutput(), nil
}

// Release 实现 Encoder.Release。
func (e *streamEncoder) Release() {
	if e.released {
		return
	}
	e.released = true

	if !e.closed {
		// 未正常收尾的流直接丢弃输出，只回收资源。
		e.closed = true
		_ = e.w.Close()
	}
	e.put(e.w)
	e.w = nil
	bytebuffer.Put(e.sink)
	e.sink = nil
}

// takeOutput 取走 sink 中已积累的压缩输出。
// 返回的切片为独立拷贝，sink 随后被清空复用。
func (e *streamEncoder) takeOutput() []byte {
	if e.sink.Len() == 0 {
		return nil
	}
	out := make([]byte, e.sink.Len())
	copy(out, e.sink.Bytes())
	e.sink.Reset()
	return out
}
