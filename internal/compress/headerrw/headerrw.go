// Package headerrw 负责把协商结果落实到响应头上。
package headerrw

import (
	"net/http"
	"strings"

	"github.com/lk2023060901/zeus-compress-go/pkg/util/typeutil"
)

const (
	headerContentEncoding = "Content-Encoding"
	headerContentLength   = "Content-Length"
	headerAcceptRanges    = "Accept-Ranges"
	headerVary            = "Vary"

	varyAcceptEncoding = "Accept-Encoding"
)

// ApplyCompress 应用压缩决策对应的头变更：
// 设置 Content-Encoding，删除 Content-Length（最终大小要到流结束才知道）
// 与 Accept-Ranges（压缩后 Range 不再可寻址），并合并 Vary。
func ApplyCompress(h http.Header, token string) {
	h.Set(headerContentEncoding, token)
	h.Del(headerContentLength)
	h.Del(headerAcceptRanges)
	ApplyVary(h)
}

// ApplyVary 将 Accept-Encoding 合并进 Vary 头。
//
// 规则：
//   - Vary 不存在时新建；
//   - 已包含 Accept-Encoding（大小写不敏感）时不重复添加；
//   - Vary: * 已覆盖所有维度，保持原样。
func ApplyVary(h http.Header) {
	seen := typeutil.NewSet[string]()
	for _, value := range h.Values(headerVary) {
		for _, member := range strings.Split(value, ",") {
			member = strings.ToLower(strings.TrimSpace(member))
			if member == "" {
				continue
			}
			seen.Insert(member)
		}
	}

	if seen.Contain("*") || seen.Contain(strings.ToLower(varyAcceptEncoding)) {
		return
	}
	h.Add(headerVary, varyAcceptEncoding)
}
