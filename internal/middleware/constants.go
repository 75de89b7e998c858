package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderOrigin is the Origin header name.
	HeaderOrigin = "Origin"

	// HeaderVary is the Vary header name.
	HeaderVary = "Vary"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderRateLimitLimit is the RateLimit-Limit header name.
	HeaderRateLimitLimit = "RateLimit-Limit"

	// HeaderRateLimitRemaining is the RateLimit-Remaining header name.
	HeaderRateLimitRemaining = "RateLimit-Remaining"

	// HeaderRateLimitReset is the RateLimit-Reset header name.
	HeaderRateLimitReset = "RateLimit-Reset"

	// HeaderRateLimitPolicy is the RateLimit-Policy header name.
	HeaderRateLimitPolicy = "RateLimit-Policy"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"

	// ContentTypeFormURLEncoded is the form URL encoded content type.
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
)

// Stage names, in pipeline order.
const (
	StageSecurityHeaders = "security-headers"
	StageCORS            = "cors"
	StageRateLimit       = "rate-limit"
	StageBodyDecode      = "body-decode"
)
