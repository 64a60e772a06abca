package validation

import (
	"strings"
	"unicode"
)

// FieldError describes a validation failure for a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const maxLicenseKeyLen = 256

// ActivationRequest mirrors the fields needed for license activation validation.
type ActivationRequest struct {
	LicenseKey string
}

// ValidateActivationRequest validates the fields of a license activation request.
func ValidateActivationRequest(req ActivationRequest) []FieldError {
	var errs []FieldError

	key := strings.TrimSpace(req.LicenseKey)
	switch {
	case key == "":
		errs = append(errs, FieldError{Field: "license_key", Message: "license_key is required"})
	case len(key) > maxLicenseKeyLen:
		errs = append(errs, FieldError{Field: "license_key", Message: "license_key must be at most 256 characters"})
	case strings.IndexFunc(key, unicode.IsControl) >= 0:
		errs = append(errs, FieldError{Field: "license_key", Message: "license_key must not contain control characters"})
	}

	return errs
}
