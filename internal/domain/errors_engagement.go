package domain

import "fmt"

// Engagement-runtime sentinel errors, taxonomized per spec.md §7. These
// compose with the teacher's existing DomainError / ErrorCode machinery
// in errors.go rather than introducing a parallel error system.
var (
	ErrValidation         = fmt.Errorf("validation failed")
	ErrContactability     = fmt.Errorf("lead has no usable channel")
	ErrModelTransient     = fmt.Errorf("model call failed transiently")
	ErrModelPermanent     = fmt.Errorf("model call failed permanently")
	ErrCarrierTransient   = fmt.Errorf("carrier call failed transiently")
	ErrCarrierPermanent   = fmt.Errorf("carrier call failed permanently")
	ErrStoreTransient     = fmt.Errorf("store operation failed transiently")
	ErrStorePermanent     = fmt.Errorf("store operation failed permanently")
	ErrBreakerOpen        = fmt.Errorf("service_unavailable: circuit breaker open")
	ErrIdempotencyConflict = fmt.Errorf("idempotency conflict")
	ErrRouterExhausted    = fmt.Errorf("model router exhausted all tiers")
	ErrDuplicateLead      = fmt.Errorf("duplicate lead submission")
	ErrNoContact          = fmt.Errorf("no contactable identifier")
	ErrOrphanReply        = fmt.Errorf("reply could not be matched to a lead")
	ErrCannotContinue     = fmt.Errorf("agent declined to continue the conversation")
)

// Engagement-runtime error codes.
const (
	CodeValidation          ErrorCode = "VALIDATION"
	CodeContactability      ErrorCode = "CONTACTABILITY"
	CodeModelTransient      ErrorCode = "MODEL_TRANSIENT"
	CodeModelPermanent      ErrorCode = "MODEL_PERMANENT"
	CodeCarrierTransient    ErrorCode = "CARRIER_TRANSIENT"
	CodeCarrierPermanent    ErrorCode = "CARRIER_PERMANENT"
	CodeStoreTransientErr   ErrorCode = "STORE_TRANSIENT"
	CodeStorePermanentErr   ErrorCode = "STORE_PERMANENT"
	CodeBreakerOpen         ErrorCode = "BREAKER_OPEN"
	CodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"
	CodeRouterExhausted     ErrorCode = "ROUTER_EXHAUSTED"
	CodeDuplicateLead       ErrorCode = "DUPLICATE_LEAD"
	CodeNoContact           ErrorCode = "NO_CONTACT"
	CodeOrphanReply         ErrorCode = "ORPHAN_REPLY"
	CodeCannotContinue      ErrorCode = "CANNOT_CONTINUE"
)

func init() {
	for sentinel, code := range map[error]ErrorCode{
		ErrValidation:          CodeValidation,
		ErrContactability:      CodeContactability,
		ErrModelTransient:      CodeModelTransient,
		ErrModelPermanent:      CodeModelPermanent,
		ErrCarrierTransient:    CodeCarrierTransient,
		ErrCarrierPermanent:    CodeCarrierPermanent,
		ErrStoreTransient:      CodeStoreTransientErr,
		ErrStorePermanent:      CodeStorePermanentErr,
		ErrBreakerOpen:         CodeBreakerOpen,
		ErrIdempotencyConflict: CodeIdempotencyConflict,
		ErrRouterExhausted:     CodeRouterExhausted,
		ErrDuplicateLead:       CodeDuplicateLead,
		ErrNoContact:           CodeNoContact,
		ErrOrphanReply:         CodeOrphanReply,
		ErrCannotContinue:      CodeCannotContinue,
	} {
		errorCodeMap[sentinel] = code
	}
}

// RetryableCode reports whether an ErrorCode represents a transient failure
// that the API boundary should advertise as retryable=true (spec.md §7).
func RetryableCode(code ErrorCode) bool {
	switch code {
	case CodeModelTransient, CodeCarrierTransient, CodeStoreTransientErr, CodeBreakerOpen, CodeTimeout, CodeRateLimit:
		return true
	default:
		return false
	}
}
