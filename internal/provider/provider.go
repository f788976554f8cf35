package provider

import (
	"context"
	"strings"

	"github.com/stageline-io/stageline/pkg/protocol"
)

// Provider is the abstraction over text/vision generation APIs.
type Provider interface {
	Complete(ctx context.Context, req protocol.CompletionRequest) (*protocol.CompletionResponse, error)
	Name() string
}

// splitDataURL splits an image payload into media type and bare base64.
// Accepts both data URLs and raw base64 (assumed PNG).
func splitDataURL(s string) (mediaType, data string) {
	if !strings.HasPrefix(s, "data:") {
		return "image/png", s
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "image/png", s
	}
	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "image/png"
	}
	return mediaType, payload
}

// asDataURL ensures an image payload is in data-URL form.
func asDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		return s
	}
	return "data:image/png;base64," + s
}
