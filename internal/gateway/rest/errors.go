package rest

import "github.com/avkuzmin/contact-admin/internal/errs"

// User-facing text for known backend error codes. Unrecognized codes fall
// back to the default entry so backend internals never reach the UI.
var friendly = map[string]string{
	"AUTH_001":       "Invalid email or password. Please try again.",
	"AUTH_002":       "Your session has expired. Please log in again.",
	"AUTH_003":       "Too many login attempts. Please try again later.",
	"OTP_001":        "Invalid verification code. Please check and try again.",
	"OTP_002":        "Verification code has expired. Please request a new one.",
	"OTP_003":        "Too many verification attempts. Please request a new code.",
	"USER_001":       "User not found.",
	"USER_002":       "Email already registered. Please use a different email.",
	"USER_003":       "Phone number already registered.",
	"VALIDATION_001": "Invalid input. Please check your information.",
	"PERMISSION_001": "You do not have permission to perform this action.",
	"RATE_LIMIT":     "Too many requests. Please wait a moment and try again.",
	"default":        "Something went wrong. Please try again later.",
}

// Category sentinel per known code.
var category = map[string]error{
	"AUTH_001":       errs.ErrAuthenticationFailed,
	"AUTH_002":       errs.ErrSessionExpired,
	"AUTH_003":       errs.ErrRateLimited,
	"OTP_001":        errs.ErrOtpInvalid,
	"OTP_002":        errs.ErrOtpExpired,
	"OTP_003":        errs.ErrOtpExpired,
	"USER_001":       errs.ErrNotFound,
	"USER_002":       errs.ErrRegistrationFailed,
	"USER_003":       errs.ErrRegistrationFailed,
	"VALIDATION_001": errs.ErrValidation,
	"RATE_LIMIT":     errs.ErrRateLimited,
}

// coded maps a backend error code and HTTP status onto the error taxonomy.
// fallback is the operation's own failure category for codes the table does
// not know.
func coded(code string, status int, fallback error) *errs.Error {
	desc, known := friendly[code]
	if !known {
		code, desc = "default", friendly["default"]
	}
	cat, ok := category[code]
	if !ok {
		switch status {
		case 401:
			cat = errs.ErrSessionExpired
		case 429:
			cat = errs.ErrRateLimited
		default:
			cat = fallback
		}
	}
	return errs.E(cat, code, desc)
}
