package httpserver

const (
	ErrInvalidJSON      = "invalid json"
	ErrDependency       = "dependency error"
	ErrNotFound         = "not found"
	ErrBadForm          = "bad form"
	ErrInvalidSignature = "invalid signature"
	ErrSendFailed       = "provider send failed"
)
