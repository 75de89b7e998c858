package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vyrodovalexey/usergw/internal/apperr"
	"github.com/vyrodovalexey/usergw/internal/pipeline"
)

// DefaultMaxBodySize is the default request body limit (10MB).
const DefaultMaxBodySize int64 = 10 << 20

// Body is a decoded request body.
type Body struct {
	// Raw holds the bytes as received.
	Raw []byte

	// ContentType is the media type without parameters.
	ContentType string

	// JSON is set for JSON bodies.
	JSON gjson.Result

	// Form is set for URL-encoded form bodies.
	Form url.Values
}

type bodyKey struct{}

// BodyFromContext returns the decoded body, if the request had one.
func BodyFromContext(ctx context.Context) (*Body, bool) {
	b, ok := ctx.Value(bodyKey{}).(*Body)
	return b, ok
}

// BodyDecoder returns the stage decoding JSON and URL-encoded bodies up
// to maxSize bytes. Oversized bodies fail with 413 and undecodable ones
// with 400. Bodies of other types are passed through with the size limit
// enforced while reading.
func BodyDecoder(maxSize int64) pipeline.Stage {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}

	return pipeline.NewStage(StageBodyDecode,
		func(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome, error) {
			if r.Body == nil || r.Body == http.NoBody {
				return nil, pipeline.Continue, nil
			}

			// Early rejection on the declared length.
			if r.ContentLength > maxSize {
				return nil, pipeline.Continue, apperr.BodyTooLarge(maxSize)
			}

			mediaType := parseMediaType(r.Header.Get(HeaderContentType))
			if !isJSON(mediaType) && mediaType != ContentTypeFormURLEncoded {
				r.Body = &limitedReadCloser{ReadCloser: r.Body, limit: maxSize, remaining: maxSize}
				return nil, pipeline.Continue, nil
			}

			raw, err := readLimited(r.Body, maxSize)
			if err != nil {
				return nil, pipeline.Continue, err
			}

			body, err := decodeBody(raw, mediaType)
			if err != nil {
				return nil, pipeline.Continue, err
			}

			r.Body = io.NopCloser(bytes.NewReader(raw))
			return r.WithContext(context.WithValue(r.Context(), bodyKey{}, body)), pipeline.Continue, nil
		})
}

func readLimited(rc io.ReadCloser, maxSize int64) ([]byte, error) {
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, apperr.MalformedBody(fmt.Errorf("failed to read body: %w", err))
	}
	if int64(len(raw)) > maxSize {
		return nil, apperr.BodyTooLarge(maxSize)
	}
	return raw, nil
}

func decodeBody(raw []byte, mediaType string) (*Body, error) {
	body := &Body{Raw: raw, ContentType: mediaType}

	if mediaType == ContentTypeFormURLEncoded {
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, apperr.MalformedBody(err)
		}
		body.Form = form
		return body, nil
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return body, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, apperr.MalformedBody(errors.New("invalid JSON"))
	}
	// Only objects and arrays are accepted at the top level.
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() && !parsed.IsArray() {
		return nil, apperr.MalformedBody(errors.New("JSON body must be an object or array"))
	}
	body.JSON = parsed
	return body, nil
}

func parseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType
}

func isJSON(mediaType string) bool {
	return mediaType == ContentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// limitedReadCloser wraps an io.ReadCloser and limits the number of bytes that can be read.
type limitedReadCloser struct {
	io.ReadCloser
	limit     int64
	remaining int64
}

// Read reads up to len(p) bytes into p, respecting the remaining limit.
func (l *limitedReadCloser) Read(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		// One more byte tells an exact-size body from an oversized one.
		var extra [1]byte
		if n, _ := l.ReadCloser.Read(extra[:]); n == 0 {
			return 0, io.EOF
		}
		return 0, apperr.BodyTooLarge(l.limit)
	}

	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}

	n, err = l.ReadCloser.Read(p)
	l.remaining -= int64(n)

	return n, err
}
