package dserrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Code classifies an Error.
type Code string

// Error codes
const (
	CodeUnsupportedFormat         Code = "UNSUPPORTED_FORMAT"
	CodeCorruptData               Code = "CORRUPT_DATA"
	CodeInvalidGeometry           Code = "INVALID_GEOMETRY"
	CodeMediaDimensionUnknown     Code = "MEDIA_DIMENSION_UNKNOWN"
	CodeUnrepresentableAnnotation Code = "UNREPRESENTABLE_ANNOTATION"
	CodeDuplicateLabel            Code = "DUPLICATE_LABEL"
)

// Well-known detail keys.
const (
	DetailFormat          = "format"
	DetailFile            = "file"
	DetailItem            = "item"
	DetailSubset          = "subset"
	DetailAnnotationIndex = "annotation_index"
	DetailAnnotationID    = "annotation_id"
)

// Error is a data-integrity error with enough context to locate the
// offending record.
type Error struct {
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	StatusCode int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%q", k, e.Details[k])
		}
		b.WriteString("]")
	}

	if e.Err != nil {
		fmt.Fprintf(&b, " (%v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithError wraps an underlying error
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

// WithFile records the source file the error was found in.
func (e *Error) WithFile(path string) *Error {
	return e.WithDetail(DetailFile, path)
}

// WithFormat records the format adapter that raised the error.
func (e *Error) WithFormat(name string) *Error {
	return e.WithDetail(DetailFormat, name)
}

// WithItem records the dataset item the error belongs to.
func (e *Error) WithItem(id, subset string) *Error {
	e.WithDetail(DetailItem, id)
	return e.WithDetail(DetailSubset, subset)
}

// WithAnnotation records the position and id of the offending annotation.
func (e *Error) WithAnnotation(index, id int) *Error {
	e.WithDetail(DetailAnnotationIndex, strconv.Itoa(index))
	return e.WithDetail(DetailAnnotationID, strconv.Itoa(id))
}

// New creates a new Error
func New(code Code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// UnsupportedFormat creates an error for input lacking a format's signature.
func UnsupportedFormat(message string) *Error {
	return New(CodeUnsupportedFormat, message, http.StatusUnsupportedMediaType)
}

// CorruptData creates an error for referentially broken input.
func CorruptData(message string) *Error {
	return New(CodeCorruptData, message, http.StatusUnprocessableEntity)
}

// InvalidGeometry creates an error for a malformed shape payload.
func InvalidGeometry(message string) *Error {
	return New(CodeInvalidGeometry, message, http.StatusUnprocessableEntity)
}

// MediaDimensionUnknown creates an error for geometry blocked on an unknown image size.
func MediaDimensionUnknown(message string) *Error {
	return New(CodeMediaDimensionUnknown, message, http.StatusUnprocessableEntity)
}

// UnrepresentableAnnotation creates an export-time capability error.
func UnrepresentableAnnotation(message string) *Error {
	return New(CodeUnrepresentableAnnotation, message, http.StatusConflict)
}

// DuplicateLabel creates a strict registry error.
func DuplicateLabel(name string) *Error {
	return New(CodeDuplicateLabel, fmt.Sprintf("label %q already registered", name), http.StatusConflict).
		WithDetail("label", name)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// IsUnsupportedFormat checks for UNSUPPORTED_FORMAT
func IsUnsupportedFormat(err error) bool {
	return HasCode(err, CodeUnsupportedFormat)
}

// IsCorruptData checks for CORRUPT_DATA
func IsCorruptData(err error) bool {
	return HasCode(err, CodeCorruptData)
}

// IsInvalidGeometry checks for INVALID_GEOMETRY
func IsInvalidGeometry(err error) bool {
	return HasCode(err, CodeInvalidGeometry)
}

// IsMediaDimensionUnknown checks for MEDIA_DIMENSION_UNKNOWN
func IsMediaDimensionUnknown(err error) bool {
	return HasCode(err, CodeMediaDimensionUnknown)
}

// IsUnrepresentableAnnotation checks for UNREPRESENTABLE_ANNOTATION
func IsUnrepresentableAnnotation(err error) bool {
	return HasCode(err, CodeUnrepresentableAnnotation)
}

// IsDuplicateLabel checks for DUPLICATE_LABEL
func IsDuplicateLabel(err error) bool {
	return HasCode(err, CodeDuplicateLabel)
}

// StatusCode maps err to an HTTP status, defaulting to 500 for errors
// outside the taxonomy.
func StatusCode(err error) int {
	if e, ok := As(err); ok && e.StatusCode != 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}
