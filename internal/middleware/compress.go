package middleware

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// DefaultCompressMinSize is the smallest response body that is compressed.
const DefaultCompressMinSize = 1024

// Compress returns a middleware that gzips responses for clients that
// accept it. Bodies under minSize bytes are sent uncompressed.
func Compress(minSize int) (func(http.Handler) http.Handler, error) {
	if minSize <= 0 {
		minSize = DefaultCompressMinSize
	}

	wrapper, err := gzhttp.NewWrapper(gzhttp.MinSize(minSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create compression wrapper: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return wrapper(next)
	}, nil
}
