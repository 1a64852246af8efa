package headerrw

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
)

type HeaderRWSuite struct {
	suite.Suite
}

func (s *HeaderRWSuite) TestApplyCompress() {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	h.Set("Content-Length", "2000")
	h.Set("Accept-Ranges", "bytes")

	ApplyCompress(h, "br")

	s.Equal("br", h.Get("Content-Encoding"))
	s.Empty(h.Get("Content-Length"))
	s.Empty(h.Get("Accept-Ranges"))
	s.Equal("Accept-Encoding", h.Get("Vary"))
	s.Equal("text/plain", h.Get("Content-Type"))
}

func (s *HeaderRWSuite) TestApplyVaryCreates() {
	h := http.Header{}
	ApplyVary(h)
	s.Equal([]string{"Accept-Encoding"}, h.Values("Vary"))
}

func (s *HeaderRWSuite) TestApplyVaryMergesWithoutDuplicate() {
	h := http.Header{}
	h.Set("Vary", "Origin")
	ApplyVary(h)
	s.Equal([]string{"Origin", "Accept-Encoding"}, h.Values("Vary"))

	// 已经存在时不重复添加，大小写不敏感。
	h2 := http.Header{}
	h2.Set("Vary", "origin, accept-encoding")
	ApplyVary(h2)
	s.Equal([]string{"origin, accept-encoding"}, h2.Values("Vary"))
}

func (s *HeaderRWSuite) TestApplyVaryIdempotent() {
	h := http.Header{}
	ApplyVary(h)
	ApplyVary(h)
	s.Equal([]string{"Accept-Encoding"}, h.Values("Vary"))
}

func (s *HeaderRWSuite) TestApplyVaryWildcardUntouched() {
	h := http.Header{}
	h.Set("Vary", "*")
	ApplyVary(h)
	s.Equal([]string{"*"}, h.Values("Vary"))
}

func TestHeaderRW(t *testing.T) {
	suite.Run(t, new(HeaderRWSuite))
}
