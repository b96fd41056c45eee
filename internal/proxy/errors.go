package proxy

// ErrorKind names why a capture record carries a non-empty error field,
// per spec.md §7.
type ErrorKind string

const (
	ErrUpstreamConnect   ErrorKind = "upstream_connect"
	ErrUpstreamTruncated ErrorKind = "upstream_truncated"
	ErrClientCancelled   ErrorKind = "client_cancelled"
	ErrCaptureIO         ErrorKind = "capture_io"
	ErrUnsupportedFormat ErrorKind = "unsupported_format"
	ErrMalformedRecord   ErrorKind = "malformed_record"
	ErrBadConfig         ErrorKind = "bad_config"
)
