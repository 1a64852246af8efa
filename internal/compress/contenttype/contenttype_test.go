package contenttype

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ContentTypeSuite struct {
	suite.Suite
}

func (s *ContentTypeSuite) TestNormalize() {
	s.Equal("text/html", Normalize("Text/HTML; charset=utf-8"))
	s.Equal("application/json", Normalize("  application/JSON  "))
	s.Equal("text/event-stream", Normalize("text/event-stream;charset=utf-8"))
	s.Equal("", Normalize(""))
}

func (s *ContentTypeSuite) TestExcluded() {
	s.True(Excluded("image/png"))
	s.True(Excluded("image/jpeg"))
	s.True(Excluded("Image/PNG"))
	s.False(Excluded("image/svg+xml"))
	s.False(Excluded("image/svg+xml; charset=utf-8"))

	s.True(Excluded("application/grpc"))
	s.True(Excluded("application/grpc+proto"))
	s.False(Excluded("application/grpc-web"))
	s.False(Excluded("application/grpc-web+proto"))

	s.False(Excluded("text/plain"))
	s.False(Excluded("application/json"))
	s.False(Excluded(""))
}

func (s *ContentTypeSuite) TestForceFlush() {
	s.True(ForceFlush("text/event-stream", nil))
	s.True(ForceFlush("text/event-stream; charset=utf-8", nil))
	s.True(ForceFlush("application/grpc-web", nil))
	s.True(ForceFlush("application/grpc-web+proto", nil))

	s.False(ForceFlush("text/plain", nil))
	s.False(ForceFlush("application/grpc", nil))
	s.False(ForceFlush("", nil))

	extra := []string{"application/x-ndjson"}
	s.True(ForceFlush("application/x-ndjson", extra))
	s.True(ForceFlush("Application/X-NDJSON; charset=utf-8", extra))
	s.False(ForceFlush("application/json", extra))
}

func TestContentType(t *testing.T) {
	suite.Run(t, new(ContentTypeSuite))
}
