package errors

// ErrorCode is a string identifier for a specific failure category.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared by every layer.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeInvalidInput       ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeTimeout            ErrorCode = "COMMON_004"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_005"
	ErrCodeSerialization      ErrorCode = "COMMON_006"
	ErrCodeInvalidConfig      ErrorCode = "COMMON_007"
	ErrCodeCacheError         ErrorCode = "COMMON_008"
)

// NER upstream error codes. These are the pipeline error variants surfaced by
// the entity client; the orchestrator absorbs all of them.
const (
	// ErrCodeNERTimeout: the per-attempt deadline elapsed before the NER
	// service answered. Retryable.
	ErrCodeNERTimeout ErrorCode = "NER_001"

	// ErrCodeNERUnavailable: connection failure or 5xx-class response from
	// the NER service. Retryable.
	ErrCodeNERUnavailable ErrorCode = "NER_002"

	// ErrCodeNERRejected: 4xx-class response; the request itself is at
	// fault, so retrying is pointless. The HTTP status is kept in Detail.
	ErrCodeNERRejected ErrorCode = "NER_003"

	// ErrCodeNERBadResponse: 2xx response whose body could not be decoded.
	ErrCodeNERBadResponse ErrorCode = "NER_004"
)

// CodeOK is the zero-failure code returned by GetCode for nil errors.
const CodeOK = ErrorCode("OK")

// CodeUnknown marks errors that carry no AppError in their chain.
const CodeUnknown = ErrorCode("UNKNOWN")

// IsRetryable reports whether code identifies a transient upstream failure
// that the entity client may retry.
func IsRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeNERTimeout, ErrCodeNERUnavailable, ErrCodeTimeout, ErrCodeServiceUnavailable:
		return true
	}
	return false
}
