// Package contenttype 根据响应的 Content-Type 判定压缩策略。
package contenttype

import (
	"strings"
)

// Normalize 去掉媒体类型的参数部分并统一为小写。
// 例如 "Text/HTML; charset=utf-8" 归一化为 "text/html"。
func Normalize(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// Excluded 判断该媒体类型是否不应压缩。
//
// 规则：
//   - image/* 本身已是压缩格式，压缩收益为负，但 image/svg+xml 是文本，例外；
//   - application/grpc 系列由 gRPC 自带 message-level 压缩，但
//     application/grpc-web 系列走浏览器通道，例外。
func Excluded(contentType string) bool {
	ct := Normalize(contentType)

	if strings.HasPrefix(ct, "image/") {
		return ct != "image/svg+xml"
	}
	if strings.HasPrefix(ct, "application/grpc") {
		return !strings.HasPrefix(ct, "application/grpc-web")
	}
	return false
}

// ForceFlush 判断该媒体类型是否要求每次写入后立即冲刷。
// extra 为调用方追加的媒体类型集合（已归一化）。
func ForceFlush(contentType string, extra []string) bool {
	ct := Normalize(contentType)

	switch ct {
	case "text/event-stream":
		return true
	}
	if strings.HasPrefix(ct, "application/grpc-web") {
		return true
	}
	for _, e := range extra {
		if ct == e {
			return true
		}
	}
	return false
}
