// Package errors provides coded errors shared by the support transport and
// routing layers, with localized client messages.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Identify errors
	CodeIdentityRequired Code = "IDENTITY_REQUIRED"
	CodeIdentityMismatch Code = "IDENTITY_MISMATCH"

	// Command errors
	CodeNotIdentified  Code = "NOT_IDENTIFIED"
	CodeAdminRequired  Code = "ADMIN_REQUIRED"
	CodeTargetRequired Code = "TARGET_REQUIRED"
	CodeBodyRequired   Code = "BODY_REQUIRED"
	CodeBodyTooLong    Code = "BODY_TOO_LONG"
)

// WireCode maps domain codes to the status codes carried in error frames.
func (c Code) WireCode() string {
	switch c {
	case CodeIdentityRequired, CodeTargetRequired, CodeBodyRequired, CodeBodyTooLong:
		return "INVALID_ARGUMENT"
	case CodeIdentityMismatch, CodeNotIdentified, CodeAdminRequired:
		return "FORBIDDEN"
	default:
		return "INTERNAL"
	}
}
