package encoding

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lk2023060901/zeus-compress-go/internal/compress/codec"
	"github.com/lk2023060901/zeus-compress-go/internal/compress/contenttype"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/typeutil"
)

// Action 表示协商结果的两种动作。
type Action int

const (
	// ActionSkip 表示不压缩，响应体原样转发。
	ActionSkip Action = iota
	// ActionCompress 表示使用 Decision.Codec 压缩响应体。
	ActionCompress
)

func (a Action) String() string {
	if a == ActionCompress {
		return "compress"
	}
	return "skip"
}

// LengthUnknown 表示响应未携带可解析的 Content-Length。
const LengthUnknown int64 = -1

// Decision 是一次响应的协商结果，生成后不再变更。
//
// 唯一的例外：Action 为 ActionCompress 且长度未知时，
// 响应体累积不足 MinSize 即结束的话，传输层仍会退回原样转发，
// 该回退由 Body Transformer 在提交点之前完成。
type Decision struct {
	Action Action
	// Codec 仅在 Action 为 ActionCompress 时有效。
	Codec codec.Kind
	// ForceFlush 为 true 时每写入一块就冲刷一次，与 Action 无关。
	ForceFlush bool
	// KnownLength 为响应声明的 Content-Length，未知时为 LengthUnknown。
	KnownLength int64
	// VaryEvaluated 为 true 时响应需要合并 Vary: Accept-Encoding，
	// 即便最终动作是 Skip，缓存也要按编码区分。
	VaryEvaluated bool
}

// Options 为协商参数，由中间件配置转换而来。
type Options struct {
	// MinSize 为启用压缩的最小响应体字节数。
	MinSize int
	// Enabled 为启用的算法集合。
	Enabled typeutil.Set[codec.Kind]
	// FlushContentTypes 为额外触发强制冲刷的媒体类型（已归一化为小写）。
	FlushContentTypes []string
	// FlushHeaders 为触发强制冲刷的头名单，头值为 no 时生效
	// （沿用 X-Accel-Buffering 的取值约定）。
	FlushHeaders []string
}

// Negotiate 根据请求与响应头计算 Decision。
// 协商永不失败，最坏结果是 Skip。
func Negotiate(req *http.Request, respHeader http.Header, opts Options) Decision {
	decision := Decision{
		Action:        ActionSkip,
		KnownLength:   parseContentLength(respHeader.Get("Content-Length")),
		ForceFlush:    forceFlush(req, respHeader, opts),
		VaryEvaluated: opts.Enabled.Len() > 0,
	}

	// 已有编码的响应不做二次压缩。
	if respHeader.Get("Content-Encoding") != "" {
		return decision
	}
	// Range 响应必须逐字节精确。
	if respHeader.Get("Content-Range") != "" {
		return decision
	}
	if contenttype.Excluded(respHeader.Get("Content-Type")) {
		return decision
	}

	accept := strings.Join(req.Header.Values("Accept-Encoding"), ",")
	kind, ok := pick(ParseAcceptEncoding(accept, opts.Enabled))
	if !ok {
		return decision
	}

	// 长度已知且低于阈值时直接放行，省掉缓冲阶段。
	if decision.KnownLength != LengthUnknown && decision.KnownLength < int64(opts.MinSize) {
		return decision
	}

	decision.Action = ActionCompress
	decision.Codec = kind
	return decision
}

// forceFlush 独立于压缩动作计算冲刷策略。
func forceFlush(req *http.Request, respHeader http.Header, opts Options) bool {
	for _, name := range opts.FlushHeaders {
		if strings.EqualFold(req.Header.Get(name), "no") ||
			strings.EqualFold(respHeader.Get(name), "no") {
			return true
		}
	}
	return contenttype.ForceFlush(respHeader.Get("Content-Type"), opts.FlushContentTypes)
}

func parseContentLength(value string) int64 {
	if value == "" {
		return LengthUnknown
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return LengthUnknown
	}
	return n
}
