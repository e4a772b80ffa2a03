// -----------------------------------------------------------------------
// Validation - Request schemas and input sanitization for the API surface
// -----------------------------------------------------------------------

package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// jobIDPattern is the only accepted job id shape. Traversal sequences, shell
// metacharacters, null bytes, and over-long ids all fall outside it.
var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("jobid", func(fl validator.FieldLevel) bool {
		return jobIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// ValidateJobID rejects any id that could not safely appear in file paths,
// branch names, or log lines.
func ValidateJobID(id string) error {
	if id == "" {
		return fmt.Errorf("job id is required")
	}
	if !jobIDPattern.MatchString(id) {
		return fmt.Errorf("job id must match %s", jobIDPattern.String())
	}
	return nil
}

// SanitizeLimit parses a raw limit query parameter, falling back to def and
// clamping to [1, max].
func SanitizeLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return ClampLimit(n, def, max)
}

// SanitizeOffset parses a raw offset query parameter. Anything unusable is 0.
func SanitizeOffset(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return ClampOffset(n)
}

// ClampLimit clamps an already-parsed limit to [1, max], with def for
// non-positive values.
func ClampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// ClampOffset clamps an already-parsed offset to >= 0.
func ClampOffset(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// ScanRequestOptions tune a requested scan. CacheEnabled and MaxDepth are
// pointers so an absent field falls through to the configured default.
type ScanRequestOptions struct {
	ForceRefresh bool  `json:"forceRefresh"`
	IncludeTests bool  `json:"includeTests"`
	CacheEnabled *bool `json:"cacheEnabled"`
	MaxDepth     *int  `json:"maxDepth" validate:"omitempty,gte=0"`
}

// ScanRequest is the POST /api/scan body. JobID is optional; the handler
// generates a scan id when it is absent.
type ScanRequest struct {
	JobID          string              `json:"jobId" validate:"omitempty,jobid"`
	RepositoryPath string              `json:"repositoryPath" validate:"required,min=1"`
	ScanType       string              `json:"scanType" validate:"omitempty,oneof=intra-project inter-project"`
	Options        *ScanRequestOptions `json:"options"`
}

// Validate checks the request against its schema using go-playground/validator.
func (r *ScanRequest) Validate() error {
	return validate.Struct(r)
}

// DecodeScanRequest strictly decodes and validates a scan request body.
// Unknown fields are rejected.
func DecodeScanRequest(body io.Reader) (*ScanRequest, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req ScanRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// FieldError is one violation in a validation failure response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// FieldErrors flattens a validation failure into response-ready entries.
// Errors that did not come from the validator map to one body-level entry.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{
				Field:   fe.Field(),
				Message: messageFor(fe),
				Code:    fe.Tag(),
			})
		}
		return out
	}
	return []FieldError{{Field: "body", Message: err.Error(), Code: "invalid"}}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "jobid":
		return fmt.Sprintf("%s must match %s", fe.Field(), jobIDPattern.String())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
