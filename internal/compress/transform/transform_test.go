package transform

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/zeus-compress-go/internal/compress/codec"
	"github.com/lk2023060901/zeus-compress-go/internal/compress/encoding"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/conc"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/merr"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/typeutil"
)

// recorder 记录底层写入与冲刷的时序，用来观察提交点。
type recorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
	writes      []int
	flushes     int
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.writes = append(r.writes, len(p))
	return r.body.Write(p)
}

func (r *recorder) Flush() { r.flushes++ }

// truncatedReader 吐出一段前缀后报错，模拟中途断开的上游源。
type truncatedReader struct {
	data []byte
	off  int
}

func (t *truncatedReader) Read(p []byte) (int, error) {
	if t.off >= len(t.data) {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, t.data[t.off:])
	t.off += n
	return n, nil
}

// failingWriter 在写入若干字节后开始报错，模拟断开的连接。
type failingWriter struct {
	*recorder
	failAfter int
	written   int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.written >= f.failAfter {
		return 0, io.ErrClosedPipe
	}
	f.written += len(p)
	return f.recorder.Write(p)
}

type TransformSuite struct {
	suite.Suite
}

func (s *TransformSuite) options() Options {
	return Options{
		Negotiate: encoding.Options{
			MinSize:      860,
			Enabled:      typeutil.NewSet(codec.KindGzip, codec.KindBrotli, codec.KindZstd),
			FlushHeaders: []string{"X-Accel-Buffering"},
		},
	}
}

func (s *TransformSuite) request(acceptEncoding string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	return req
}

func (s *TransformSuite) decompress(token string, compressed []byte) []byte {
	var (
		r   io.Reader
		err error
	)
	switch token {
	case "gzip":
		r, err = gzip.NewReader(bytes.NewReader(compressed))
		s.Require().NoError(err)
	case "br":
		r = brotli.NewReader(bytes.NewReader(compressed))
	case "zstd":
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(bytes.NewReader(compressed))
		s.Require().NoError(err)
		defer dec.Close()
		r = dec
	default:
		s.FailNow("unexpected token " + token)
	}
	plain, err := io.ReadAll(r)
	s.Require().NoError(err)
	return plain
}

func (s *TransformSuite) TestKnownLengthCompressed() {
	// Scenario: Accept-Encoding: gzip, br + Content-Length: 2000 选 br。
	payload := []byte(strings.Repeat("hello compression ", 112)) // 2016 字节
	rec := newRecorder()
	w := New(rec, s.request("gzip, br"), s.options())

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", "2016")
	_, err := w.Write(payload)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	s.Equal("br", rec.header.Get("Content-Encoding"))
	s.Empty(rec.header.Get("Content-Length"))
	s.Equal("Accept-Encoding", rec.header.Get("Vary"))
	s.Equal(http.StatusOK, rec.status)
	s.Equal(payload, s.decompress("br", rec.body.Bytes()))
}

func (s *TransformSuite) TestKnownLengthBelowThresholdPassthrough() {
	payload := []byte("short body")
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", "10")
	_, err := w.Write(payload)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	s.Empty(rec.header.Get("Content-Encoding"))
	s.Equal("10", rec.header.Get("Content-Length"))
	s.Equal("Accept-Encoding", rec.header.Get("Vary"))
	s.Equal(payload, rec.body.Bytes())
}

func (s *TransformSuite) TestUnknownLengthBelowThresholdPassthrough() {
	payload := []byte("tiny streaming body")
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())

	w.Header().Set("Content-Type", "text/plain")
	_, err := w.Write(payload)
	s.Require().NoError(err)
	// 阈值未到之前不应有任何字节下发。
	s.Empty(rec.writes)
	s.False(rec.wroteHeader)

	s.Require().NoError(w.Close())
	s.Empty(rec.header.Get("Content-Encoding"))
	s.Equal(payload, rec.body.Bytes())
	s.Equal("Accept-Encoding", rec.header.Get("Vary"))
}

func (s *TransformSuite) TestUnknownLengthAboveThresholdCompressed() {
	chunk := []byte(strings.Repeat("streaming data ", 10)) // 150 字节
	rec := newRecorder()
	w := New(rec, s.request("zstd"), s.options())
	w.Header().Set("Content-Type", "application/json")

	var payload []byte
	for i := 0; i < 20; i++ {
		_, err := w.Write(chunk)
		s.Require().NoError(err)
		payload = append(payload, chunk...)
	}
	s.Require().NoError(w.Close())

	s.Equal("zstd", rec.header.Get("Content-Encoding"))
	s.Equal(payload, s.decompress("zstd", rec.body.Bytes()))
}

func (s *TransformSuite) TestBufferingHoldsUntilThreshold() {
	// 50 字节一块，阈值 860：前 17 块只缓冲，第 18 块触发提交。
	chunk := bytes.Repeat([]byte("x"), 50)
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")

	for i := 0; i < 17; i++ {
		_, err := w.Write(chunk)
		s.Require().NoError(err)
		s.False(rec.wroteHeader, "chunk %d must stay buffered", i)
	}

	_, err := w.Write(chunk)
	s.Require().NoError(err)
	s.True(rec.wroteHeader)
	s.Equal("gzip", rec.header.Get("Content-Encoding"))
	s.Require().NoError(w.Close())

	s.Equal(bytes.Repeat([]byte("x"), 50*18), s.decompress("gzip", rec.body.Bytes()))
}

func (s *TransformSuite) TestEventStreamForceFlushAfterCommit() {
	chunk := []byte(strings.Repeat("data: tick\n\n", 5)) // 60 字节
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/event-stream")

	var sent int
	for sent+len(chunk) < 860 {
		_, err := w.Write(chunk)
		s.Require().NoError(err)
		sent += len(chunk)
	}
	s.Zero(rec.flushes)

	// 提交之后每块都要跟一次冲刷。
	before := rec.flushes
	for i := 0; i < 5; i++ {
		_, err := w.Write(chunk)
		s.Require().NoError(err)
		s.Greater(rec.flushes, before, "chunk %d must be flushed", i)
		before = rec.flushes
	}
	s.Require().NoError(w.Close())
	s.Equal("gzip", rec.header.Get("Content-Encoding"))
}

func (s *TransformSuite) TestEventStreamPassthroughStillFlushed() {
	// 客户端不接受压缩时 SSE 依然逐块冲刷。
	rec := newRecorder()
	w := New(rec, s.request(""), s.options())
	w.Header().Set("Content-Type", "text/event-stream")

	for i := 1; i <= 3; i++ {
		_, err := w.Write([]byte("data: tick\n\n"))
		s.Require().NoError(err)
		s.Equal(i, rec.flushes)
	}
	s.Require().NoError(w.Close())
	s.Empty(rec.header.Get("Content-Encoding"))
}

func (s *TransformSuite) TestPendingFlushHonoredAtCommit() {
	chunk := bytes.Repeat([]byte("y"), 100)
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")

	_, err := w.Write(chunk)
	s.Require().NoError(err)
	w.Flush()
	// 缓冲阶段的冲刷只记录，不触发提交。
	s.Zero(rec.flushes)
	s.False(rec.wroteHeader)

	_, err = w.Write(bytes.Repeat([]byte("y"), 900))
	s.Require().NoError(err)
	s.GreaterOrEqual(rec.flushes, 1)
	s.Require().NoError(w.Close())
}

func (s *TransformSuite) TestAlreadyEncodedUntouched() {
	payload := []byte(strings.Repeat("pre-compressed ", 100))
	rec := newRecorder()
	w := New(rec, s.request("gzip, br, zstd"), s.options())
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Length", "1500")

	_, err := w.Write(payload)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	s.Equal("gzip", rec.header.Get("Content-Encoding"))
	s.Equal("1500", rec.header.Get("Content-Length"))
	s.Equal(payload, rec.body.Bytes())
}

func (s *TransformSuite) TestContentRangeNeverCompressed() {
	payload := []byte(strings.Repeat("range slice ", 100))
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Range", "bytes 0-1199/50000")

	_, err := w.Write(payload)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	s.Empty(rec.header.Get("Content-Encoding"))
	s.Equal(payload, rec.body.Bytes())
}

func (s *TransformSuite) TestExcludedContentTypes() {
	payload := bytes.Repeat([]byte{0x89, 0x50, 0x4e, 0x47}, 500)
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", "2000")

	_, err := w.Write(payload)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())
	s.Empty(rec.header.Get("Content-Encoding"))
	s.Equal(payload, rec.body.Bytes())

	// SVG 是文本，照常压缩。
	svg := []byte(strings.Repeat("<svg><rect/></svg>", 100))
	rec2 := newRecorder()
	w2 := New(rec2, s.request("gzip"), s.options())
	w2.Header().Set("Content-Type", "image/svg+xml")
	w2.Header().Set("Content-Length", "1800")

	_, err = w2.Write(svg)
	s.Require().NoError(err)
	s.Require().NoError(w2.Close())
	s.Equal("gzip", rec2.header.Get("Content-Encoding"))
	s.Equal(svg, s.decompress("gzip", rec2.body.Bytes()))
}

func (s *TransformSuite) TestGrpcWebCompressedAndFlushed() {
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.Header().Set("Content-Length", "2000")

	_, err := w.Write(bytes.Repeat([]byte("m"), 2000))
	s.Require().NoError(err)
	s.Equal("gzip", rec.header.Get("Content-Encoding"))
	s.GreaterOrEqual(rec.flushes, 1)
	s.Require().NoError(w.Close())
}

func (s *TransformSuite) TestHeadRequestNeverCompressed() {
	req := httptest.NewRequest(http.MethodHead, "/data", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := newRecorder()
	w := New(rec, req, s.options())
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", "5000")

	w.WriteHeader(http.StatusOK)
	s.Require().NoError(w.Close())
	s.Empty(rec.header.Get("Content-Encoding"))
	s.Equal("5000", rec.header.Get("Content-Length"))
}

func (s *TransformSuite) TestNoContentStatusSkipped() {
	for _, status := range []int{http.StatusNoContent, http.StatusNotModified} {
		rec := newRecorder()
		w := New(rec, s.request("gzip"), s.options())
		w.WriteHeader(status)
		s.Require().NoError(w.Close())
		s.Empty(rec.header.Get("Content-Encoding"), status)
		s.Equal(status, rec.status)
	}
}

func (s *TransformSuite) TestEmptyBody() {
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")

	s.Require().NoError(w.Close())
	s.Empty(rec.header.Get("Content-Encoding"))
	s.Zero(rec.body.Len())
	s.Equal(http.StatusOK, rec.status)
}

func (s *TransformSuite) TestWriteAfterCloseRejected() {
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")
	s.Require().NoError(w.Close())

	_, err := w.Write([]byte("too late"))
	s.Error(err)
}

func (s *TransformSuite) TestDownstreamFailurePropagates() {
	// 原样转发路径：写入立即触底失败。
	rec := &failingWriter{recorder: newRecorder(), failAfter: 0}
	w := New(rec, s.request(""), s.options())
	w.Header().Set("Content-Type", "text/plain")

	_, err := w.Write(bytes.Repeat([]byte("z"), 2000))
	s.Error(err)
	s.Error(w.Close())

	// 压缩路径：编码器可能缓冲到收尾才产出，错误最迟在 Close 暴露。
	rec2 := &failingWriter{recorder: newRecorder(), failAfter: 0}
	w2 := New(rec2, s.request("gzip"), s.options())
	w2.Header().Set("Content-Type", "text/plain")
	w2.Header().Set("Content-Length", "4000")

	_, _ = w2.Write(bytes.Repeat([]byte("z"), 4000))
	s.Error(w2.Close())
}

func (s *TransformSuite) TestReadFrom() {
	payload := []byte(strings.Repeat("copied through io.Copy ", 100))
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")

	n, err := io.Copy(w, bytes.NewReader(payload))
	s.Require().NoError(err)
	s.Equal(int64(len(payload)), n)
	s.Require().NoError(w.Close())

	s.Equal("gzip", rec.header.Get("Content-Encoding"))
	s.Equal(payload, s.decompress("gzip", rec.body.Bytes()))
}

func (s *TransformSuite) TestReadFromUpstreamFailureFailsStream() {
	// 上游在 2000 字节后中断，此时已进入压缩态。
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")

	src := &truncatedReader{data: bytes.Repeat([]byte("u"), 2000)}
	_, err := io.Copy(w, src)
	s.Require().Error(err)
	s.ErrorIs(err, merr.ErrBodyUpstream)

	// 即使调用方忽略 io.Copy 的错误，收尾也不能把截断的体当完整流交付。
	err = w.Close()
	s.Require().Error(err)
	s.ErrorIs(err, merr.ErrBodyUpstream)

	_, werr := w.Write([]byte("after failure"))
	s.Error(werr)
}

func (s *TransformSuite) TestReadFromImmediateUpstreamFailure() {
	// 第一次读就失败：头部尚未提交，错误同样要在 Close 暴露。
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())
	w.Header().Set("Content-Type", "text/plain")

	_, err := io.Copy(w, &truncatedReader{})
	s.Require().Error(err)
	s.ErrorIs(w.Close(), merr.ErrBodyUpstream)
	s.False(w.Written())
}

func (s *TransformSuite) TestContentTypeSniffedOnFirstWrite() {
	payload := []byte("<html><body>" + strings.Repeat("sniff ", 300) + "</body></html>")
	rec := newRecorder()
	w := New(rec, s.request("gzip"), s.options())

	_, err := w.Write(payload)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	s.Contains(rec.header.Get("Content-Type"), "text/html")
	s.Equal("gzip", rec.header.Get("Content-Encoding"))
}

func (s *TransformSuite) TestSharedPool() {
	pool := conc.NewPool[[]byte](2)
	defer pool.Release()

	opts := s.options()
	opts.Pool = pool

	payload := []byte(strings.Repeat("pooled compression ", 200))
	rec := newRecorder()
	w := New(rec, s.request("zstd"), opts)
	w.Header().Set("Content-Type", "text/plain")

	_, err := w.Write(payload)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	s.Equal("zstd", rec.header.Get("Content-Encoding"))
	s.Equal(payload, s.decompress("zstd", rec.body.Bytes()))
}

func TestTransform(t *testing.T) {
	suite.Run(t, new(TransformSuite))
}
