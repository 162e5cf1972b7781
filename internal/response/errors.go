package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden      ErrCode = "FORBIDDEN"
	ErrAdvisorOnly    ErrCode = "ADVISOR_ACCESS_ONLY"
	ErrSurveyNotAllow ErrCode = "SURVEY_NOT_ALLOWED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownField   ErrCode = "UNKNOWN_FIELD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound           ErrCode = "NOT_FOUND"
	ErrDiagnosticNotFound ErrCode = "DIAGNOSTIC_NOT_FOUND"
	ErrReportNotFound     ErrCode = "REPORT_NOT_FOUND"

	// ─── Survey ────────────────────────────────────────────────────────
	ErrFirstPage        ErrCode = "FIRST_PAGE"
	ErrLastPage         ErrCode = "LAST_PAGE"
	ErrNotLastPage      ErrCode = "NOT_LAST_PAGE"
	ErrDiagnosticLocked ErrCode = "DIAGNOSTIC_LOCKED"
	ErrSessionNotReady  ErrCode = "SESSION_NOT_READY"
	ErrSaveFailed       ErrCode = "SAVE_FAILED"
	ErrSubmitFailed     ErrCode = "SUBMIT_FAILED"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrAdvisorOnly:
		return "This resource is restricted to advisors."
	case ErrSurveyNotAllow:
		return "Your role cannot answer diagnostics."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrUnknownField:
		return "The answer does not belong to any survey question."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrDiagnosticNotFound:
		return "No diagnostic exists for this engagement yet."
	case ErrReportNotFound:
		return "The report is not available yet."

	// ─── Survey ────────────────────────────────────────────────────────
	case ErrFirstPage:
		return "You are already on the first page."
	case ErrLastPage:
		return "You are already on the last page."
	case ErrNotLastPage:
		return "The diagnostic can only be submitted from the last page."
	case ErrDiagnosticLocked:
		return "This diagnostic has been submitted and can no longer be edited."
	case ErrSessionNotReady:
		return "The survey is still loading. Please try again."
	case ErrSaveFailed:
		return "Your answers could not be saved. They are kept and you can retry."
	case ErrSubmitFailed:
		return "The diagnostic could not be submitted. Please retry."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrBackendUnavailable:
		return "The advisory service is unavailable. Please try again later."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
