// Package transform 实现响应体压缩的核心状态机。
//
// 每个响应对应一个 ResponseWriter 实例，由单个 handler goroutine 独占，
// 生命周期为 Buffering → {Compressing, Passthrough} → Finished，
// 任何状态都可能因错误进入 Failed，状态只前进不回退。
package transform

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-compress-go/internal/compress/codec"
	"github.com/lk2023060901/zeus-compress-go/internal/compress/encoding"
	"github.com/lk2023060901/zeus-compress-go/internal/compress/headerrw"
	"github.com/lk2023060901/zeus-compress-go/internal/pool/bytebuffer"
	"github.com/lk2023060901/zeus-compress-go/pkg/log"
	"github.com/lk2023060901/zeus-compress-go/pkg/metrics"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/conc"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/merr"
)

// mode 为状态机的当前状态。
type mode int

const (
	// modeInit 表示尚未收到任何 Write/WriteHeader，决策未生成。
	modeInit mode = iota
	// modeBuffering 表示决策为压缩但长度未知，正在累积到阈值。
	modeBuffering
	modeCompressing
	modePassthrough
	modeFinished
	modeFailed
)

// Options 为状态机的全部可调参数。
type Options struct {
	// Negotiate 为协商参数。
	Negotiate encoding.Options
	// Codec 为各算法的编码参数。
	Codec codec.Options
	// Pool 为可选的共享压缩协程池，用于限制进程级压缩并发。
	// 为 nil 时压缩在 handler goroutine 内同步执行。
	Pool *conc.Pool[[]byte]
	// Buffers 为可选的缓冲区池，为 nil 时使用内置默认池。
	Buffers *bytebuffer.Pool
}

// ResponseWriter 包装原始 http.ResponseWriter，按协商结果压缩响应体。
//
// 头部采用延迟提交策略：在决策最终确定之前（长度未知的压缩决策要等
// 缓冲阶段出结果），WriteHeader 只记录状态码，不向底层提交。
// 这样缓冲不足阈值时可以无痕回退为原样转发，头部不带任何压缩痕迹。
type ResponseWriter struct {
	rw   http.ResponseWriter
	req  *http.Request
	opts Options

	mode     mode
	decision encoding.Decision
	enc      codec.Encoder
	buf      *bytes.Buffer

	status        int
	headerWritten bool
	pendingFlush  bool

	bytesIn  int64
	bytesOut int64
	err      error
}

var (
	_ http.ResponseWriter = (*ResponseWriter)(nil)
	_ http.Flusher        = (*ResponseWriter)(nil)
	_ io.ReaderFrom       = (*ResponseWriter)(nil)
)

// New 创建一个响应的状态机实例。
// 调用方必须在 handler 返回后调用 Close，无论成功与否。
func New(rw http.ResponseWriter, req *http.Request, opts Options) *ResponseWriter {
	return &ResponseWriter{
		rw:   rw,
		req:  req,
		opts: opts,
	}
}

// Header 返回底层响应头。
// 头的提交时机由状态机控制，修改本身不受影响。
func (w *ResponseWriter) Header() http.Header {
	return w.rw.Header()
}

// WriteHeader 记录状态码并触发协商。
// 1xx 信息性响应直接透传，不参与压缩决策。
func (w *ResponseWriter) WriteHeader(status int) {
	if status >= 100 && status < 200 {
		w.rw.WriteHeader(status)
		return
	}
	if w.mode != modeInit {
		return
	}
	w.status = status
	w.negotiate()
}

// Write 实现 http.ResponseWriter。
// 失败后再次调用返回已记录的错误，不会产生新输出。
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if w.mode == modeInit {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(p))
		}
		w.status = http.StatusOK
		w.negotiate()
	}

	switch w.mode {
	case modeBuffering:
		return w.writeBuffering(p)
	case modeCompressing:
		return w.writeCompressing(p)
	case modePassthrough:
		return w.writePassthrough(p)
	case modeFinished:
		return 0, merr.WrapErrTransformFinished()
	default:
		return 0, w.err
	}
}

// ReadFrom 支持 io.Copy 直接灌入响应体。
// 读取 src 的失败与写入失败区分开，前者按上游错误包装。
// 上游读取中断意味着响应体不完整，状态机直接进入失败态，
// 即使调用方忽略返回的错误，Close 也不会把截断的体正常收尾。
func (w *ResponseWriter) ReadFrom(src io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			err := merr.WrapErrBodyUpstream(rerr)
			w.fail(err)
			return total, err
		}
	}
}

// Flush 实现 http.Flusher。
// 缓冲阶段不提交决策，冲刷请求被记录下来，在提交点补发。
func (w *ResponseWriter) Flush() {
	if w.mode == modeInit {
		w.status = http.StatusOK
		w.negotiate()
	}

	switch w.mode {
	case modeBuffering:
		w.pendingFlush = true
	case modeCompressing:
		out, err := w.flushEncoder()
		if err != nil {
			w.fail(err)
			return
		}
		if err := w.writeOut(out); err != nil {
			w.fail(err)
			return
		}
		w.flushDownstream()
	case modePassthrough:
		w.flushDownstream()
	}
}

// Hijack 透传给底层连接。劫持后本响应交还调用方，状态机直接收尾。
func (w *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.rw.(http.Hijacker)
	if !ok {
		return nil, nil, merr.WrapErrParameterInvalidMsg("underlying ResponseWriter does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		w.release()
		w.mode = modeFinished
	}
	return conn, rw, err
}

// Unwrap 供 http.ResponseController 穿透使用。
func (w *ResponseWriter) Unwrap() http.ResponseWriter {
	return w.rw
}

// Close 结束本响应的转换，handler 返回后必须调用。
// 返回的错误表示响应体未能完整送达，调用方需要中断连接而不是静默收尾。
func (w *ResponseWriter) Close() error {
	switch w.mode {
	case modeInit:
		// handler 没有产生任何输出，按空体提交。
		w.status = http.StatusOK
		w.negotiate()
		return w.Close()
	case modeBuffering:
		// 到体结束仍未达到阈值，回退为原样转发。
		w.commitPassthrough()
		if w.mode == modeFailed {
			return w.err
		}
		w.finish(metrics.ActionPassthrough)
		return nil
	case modeCompressing:
		out, err := w.finishEncoder()
		if err != nil {
			w.fail(err)
			return w.err
		}
		if err := w.writeOut(out); err != nil {
			w.fail(err)
			return w.err
		}
		w.finish(metrics.ActionCompress)
		return nil
	case modePassthrough:
		w.finish(metrics.ActionPassthrough)
		return nil
	case modeFailed:
		return w.err
	default:
		return nil
	}
}

// Written 返回是否已有字节提交到底层连接。
func (w *ResponseWriter) Written() bool {
	return w.headerWritten
}

// Abort 立即释放资源并放弃后续输出。
// 用于 handler panic、客户端断开等不会再走正常收尾的路径。
func (w *ResponseWriter) Abort() {
	if w.mode == modeFinished || w.mode == modeFailed {
		return
	}
	w.release()
	w.mode = modeFailed
	w.err = merr.WrapErrTransformFailed(http.ErrAbortHandler)
}

// negotiate 生成本响应的决策并切换到对应状态。
// 只在 modeInit 下调用一次。
func (w *ResponseWriter) negotiate() {
	d := encoding.Negotiate(w.req, w.Header(), w.opts.Negotiate)

	// 没有响应体的场合不压缩：HEAD 请求与 204/304 状态码。
	if w.req.Method == http.MethodHead ||
		w.status == http.StatusNoContent ||
		w.status == http.StatusNotModified {
		d.Action = encoding.ActionSkip
	}
	w.decision = d

	if ce := log.L().Check(zap.DebugLevel, "compression decision"); ce != nil {
		ce.Write(
			zap.String("action", d.Action.String()),
			zap.String("codec", d.Codec.Token()),
			zap.Bool("forceFlush", d.ForceFlush),
			zap.Int64("knownLength", d.KnownLength),
			zap.String("path", w.req.URL.Path))
	}

	if d.Action == encoding.ActionSkip {
		w.commitSkip()
		return
	}

	if d.KnownLength != encoding.LengthUnknown {
		// 长度已知且达标，立即提交压缩决策。
		w.commitCompress()
		return
	}

	// 长度未知，先缓冲到阈值再定。
	w.mode = modeBuffering
	if w.opts.Buffers != nil {
		w.buf = w.opts.Buffers.Get()
	} else {
		w.buf = bytebuffer.Get()
	}
}

// commitSkip 提交 Skip 决策：除 Vary 合并外头部原样不动。
func (w *ResponseWriter) commitSkip() {
	if w.decision.VaryEvaluated {
		headerrw.ApplyVary(w.Header())
	}
	w.mode = modePassthrough
	w.commitHeader()
}

// commitCompress 提交压缩决策：改写头部并创建编码器。
func (w *ResponseWriter) commitCompress() {
	enc, err := codec.New(w.decision.Codec, w.opts.Codec)
	if err != nil {
		w.fail(err)
		return
	}
	w.enc = enc
	headerrw.ApplyCompress(w.Header(), w.decision.Codec.Token())
	w.mode = modeCompressing
	w.commitHeader()
}

// commitPassthrough 在缓冲不足阈值时回退：补发头部与缓冲内容。
func (w *ResponseWriter) commitPassthrough() {
	if w.decision.VaryEvaluated {
		headerrw.ApplyVary(w.Header())
	}
	w.mode = modePassthrough
	w.commitHeader()

	if w.buf != nil && w.buf.Len() > 0 {
		if err := w.writeOut(w.buf.Bytes()); err != nil {
			w.fail(err)
			return
		}
	}
	w.releaseBuffer()
	if w.pendingFlush || w.decision.ForceFlush {
		w.flushDownstream()
	}
}

// commitHeader 把记录的状态码提交到底层。
func (w *ResponseWriter) commitHeader() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.rw.WriteHeader(w.status)
}

// writeBuffering 处理缓冲阶段的一块输入。
// 缓冲区长度加上本块达到阈值即提交压缩，缓冲区永不超过阈值。
func (w *ResponseWriter) writeBuffering(p []byte) (int, error) {
	if w.buf.Len()+len(p) < w.opts.Negotiate.MinSize {
		w.bytesIn += int64(len(p))
		w.buf.Write(p)
		return len(p), nil
	}

	w.commitCompress()
	if w.mode == modeFailed {
		return 0, w.err
	}

	// 先补推缓冲的前缀（已计入 bytesIn），再推本块。
	buffered := w.buf.Bytes()
	if len(buffered) > 0 {
		out, err := w.push(buffered)
		if err != nil {
			w.fail(err)
			return 0, w.err
		}
		if err := w.writeOut(out); err != nil {
			w.fail(err)
			return 0, w.err
		}
	}
	w.releaseBuffer()

	n, err := w.writeCompressing(p)
	if err != nil {
		return n, err
	}

	// 缓冲阶段吞掉的冲刷请求在提交点补上。
	if w.pendingFlush && !w.decision.ForceFlush {
		w.pendingFlush = false
		w.Flush()
	}
	return n, nil
}

func (w *ResponseWriter) writeCompressing(p []byte) (int, error) {
	w.bytesIn += int64(len(p))

	out, err := w.push(p)
	if err != nil {
		w.fail(err)
		return 0, w.err
	}
	if err := w.writeOut(out); err != nil {
		w.fail(err)
		return 0, w.err
	}

	if w.decision.ForceFlush {
		flushed, err := w.flushEncoder()
		if err != nil {
			w.fail(err)
			return 0, w.err
		}
		if err := w.writeOut(flushed); err != nil {
			w.fail(err)
			return 0, w.err
		}
		w.flushDownstream()
	}
	return len(p), nil
}

func (w *ResponseWriter) writePassthrough(p []byte) (int, error) {
	w.bytesIn += int64(len(p))
	if err := w.writeOut(p); err != nil {
		w.fail(err)
		return 0, w.err
	}
	if w.decision.ForceFlush {
		w.flushDownstream()
	}
	return len(p), nil
}

// push 将一块明文送入编码器。
// 配置了共享协程池时压缩在池内执行，调用方同步等待结果，
// 以此限制进程级的压缩并发。
func (w *ResponseWriter) push(chunk []byte) ([]byte, error) {
	if w.opts.Pool == nil {
		return w.enc.Push(chunk)
	}
	enc := w.enc
	return w.opts.Pool.Submit(func() ([]byte, error) {
		return enc.Push(chunk)
	}).Await()
}

func (w *ResponseWriter) flushEncoder() ([]byte, error) {
	if w.opts.Pool == nil {
		return w.enc.Flush()
	}
	enc := w.enc
	return w.opts.Pool.Submit(func() ([]byte, error) {
		return enc.Flush()
	}).Await()
}

func (w *ResponseWriter) finishEncoder() ([]byte, error) {
	if w.opts.Pool == nil {
		return w.enc.Finish()
	}
	enc := w.enc
	return w.opts.Pool.Submit(func() ([]byte, error) {
		return enc.Finish()
	}).Await()
}

// writeOut 把已经定稿的字节写到底层连接。
func (w *ResponseWriter) writeOut(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if !w.headerWritten {
		w.commitHeader()
	}
	n, err := w.rw.Write(p)
	w.bytesOut += int64(n)
	if err != nil {
		return merr.WrapErrTransformFailed(err)
	}
	return nil
}

func (w *ResponseWriter) flushDownstream() {
	if f, ok := w.rw.(http.Flusher); ok {
		f.Flush()
		if w.decision.ForceFlush {
			metrics.ForcedFlushes.Inc()
		}
	}
}

// fail 进入失败态：先释放编码器与缓冲，再记录错误。
func (w *ResponseWriter) fail(err error) {
	if w.mode == modeFailed {
		return
	}
	w.release()
	w.mode = modeFailed
	w.err = err

	token := "none"
	if w.decision.Action == encoding.ActionCompress {
		token = w.decision.Codec.Token()
	}
	metrics.TransformFailures.WithLabelValues(token).Inc()
	log.Warn("response transform aborted",
		zap.String("codec", token),
		zap.Int64("bytesIn", w.bytesIn),
		zap.Int64("bytesOut", w.bytesOut),
		zap.Error(err))
}

// finish 进入终态并上报指标。
func (w *ResponseWriter) finish(action string) {
	w.release()
	w.mode = modeFinished

	token := "none"
	if action == metrics.ActionCompress {
		token = w.decision.Codec.Token()
		metrics.BodyBytesIn.WithLabelValues(token).Add(float64(w.bytesIn))
		metrics.BodyBytesOut.WithLabelValues(token).Add(float64(w.bytesOut))
		if w.bytesIn > 0 {
			metrics.CompressionRatio.WithLabelValues(token).
				Observe(float64(w.bytesOut) / float64(w.bytesIn))
		}
	}
	metrics.ResponsesTotal.WithLabelValues(action, token).Inc()
	metrics.BodySize.WithLabelValues(action).Observe(float64(w.bytesIn))
}

// release 回收编码器与缓冲区，任何退出路径都会走到。
func (w *ResponseWriter) release() {
	if w.enc != nil {
		w.enc.Release()
		w.enc = nil
	}
	w.releaseBuffer()
}

func (w *ResponseWriter) releaseBuffer() {
	if w.buf == nil {
		return
	}
	if w.opts.Buffers != nil {
		w.opts.Buffers.Put(w.buf)
	} else {
		bytebuffer.Put(w.buf)
	}
	w.buf = nil
}
