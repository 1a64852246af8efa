// Package encoding 实现 HTTP 内容编码协商：解析 Accept-Encoding，
// 结合响应头得出本次响应的压缩决策。
package encoding

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/lk2023060901/zeus-compress-go/internal/compress/codec"
	"github.com/lk2023060901/zeus-compress-go/pkg/util/typeutil"
)

// Candidate 表示客户端可接受的一种压缩算法及其权重。
type Candidate struct {
	Kind codec.Kind
	Q    float64
}

// ParseAcceptEncoding 解析 Accept-Encoding 头，返回按客户端声明
// 过滤后的候选集合。
//
// 规则：
//   - 仅保留 enabled 中启用的算法，identity 与 * 不会选中任何算法；
//   - q 缺省为 1.0，显式 q=0 表示客户端禁用该算法；
//   - 无法解析的条目单独丢弃，不影响其余条目；
//   - 同一算法出现多次时，后出现的条目生效。
func ParseAcceptEncoding(header string, enabled typeutil.Set[codec.Kind]) []Candidate {
	if header == "" || enabled.Len() == 0 {
		return nil
	}

	weights := make(map[codec.Kind]float64)
	for _, entry := range strings.Split(header, ",") {
		token, q, ok := parseEntry(entry)
		if !ok {
			continue
		}
		kind, ok := codec.KindFromToken(token)
		if !ok || !enabled.Contain(kind) {
			continue
		}
		if q <= 0 {
			delete(weights, kind)
			continue
		}
		weights[kind] = q
	}

	return lo.MapToSlice(weights, func(kind codec.Kind, q float64) Candidate {
		return Candidate{Kind: kind, Q: q}
	})
}

// parseEntry 解析单个 "token[;q=value]" 条目。
func parseEntry(entry string) (token string, q float64, ok bool) {
	parts := strings.Split(entry, ";")
	token = strings.ToLower(strings.TrimSpace(parts[0]))
	if token == "" {
		return "", 0, false
	}

	q = 1.0
	for _, param := range parts[1:] {
		param = strings.ToLower(strings.TrimSpace(param))
		if !strings.HasPrefix(param, "q=") {
			continue
		}
		val, err := strconv.ParseFloat(param[len("q="):], 64)
		if err != nil || val < 0 || val > 1 {
			return "", 0, false
		}
		q = val
	}
	return token, q, true
}

// pick 在候选集合中选出最终算法：先比客户端权重，
// 权重相同时按服务端偏好 zstd > br > gzip。
func pick(candidates []Candidate) (codec.Kind, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best := lo.MinBy(candidates, func(a, b Candidate) bool {
		if a.Q != b.Q {
			return a.Q > b.Q
		}
		return a.Kind.Preference() < b.Kind.Preference()
	})
	return best.Kind, true
}
