package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/basket/internal/model"
)

// Error is a fatal import failure for one entity.
//
// Every Error carries enough context to act on it: the kind, the natural
// key from the payload, and the conflicting identifier when there is one.
// No mutation has been performed for the entity when an Error is returned.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Kind is the entity kind being imported.
	Kind model.Kind

	// Key is the natural key carried by the payload, if any.
	Key string

	// UID is the payload UID in hyphenated form, if any.
	UID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes import errors.
type ErrorCode string

const (
	// ErrCodeDuplicateUID indicates more than one stored entity carries the
	// payload UID. This is a storage integrity violation.
	ErrCodeDuplicateUID ErrorCode = "DUPLICATE_UID"

	// ErrCodeDuplicateKey indicates the natural key is held by an entity the
	// payload cannot bind to.
	ErrCodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// ErrCodeUnresolvedReference indicates a referenced entity does not exist.
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeMalformedPayload indicates the payload was rejected before any
	// storage access.
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var ctx []string
	if e.Kind != "" {
		ctx = append(ctx, "kind="+string(e.Kind))
	}
	if e.Key != "" {
		ctx = append(ctx, fmt.Sprintf("key=%q", e.Key))
	}
	if e.UID != "" {
		ctx = append(ctx, "uid="+e.UID)
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" when err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// IsIntegrityError returns true for duplicate UID and duplicate natural key
// errors.
func IsIntegrityError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeDuplicateUID || code == ErrCodeDuplicateKey
}

// IsDuplicateUID returns true if err reports more than one holder of a UID.
func IsDuplicateUID(err error) bool {
	return CodeOf(err) == ErrCodeDuplicateUID
}

// IsUnresolvedReference returns true if a referenced entity was missing.
func IsUnresolvedReference(err error) bool {
	return CodeOf(err) == ErrCodeUnresolvedReference
}

// IsMalformed returns true if the payload was rejected as malformed.
func IsMalformed(err error) bool {
	return CodeOf(err) == ErrCodeMalformedPayload
}

func malformed(kind model.Kind, key, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeMalformedPayload,
		Kind:    kind,
		Key:     key,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewDuplicateUIDError reports count holders of uid.
func NewDuplicateUIDError(kind model.Kind, key, uid string, count int) *Error {
	return &Error{
		Code:    ErrCodeDuplicateUID,
		Kind:    kind,
		Key:     key,
		UID:     uid,
		Message: fmt.Sprintf("duplicate UID for kind %s: %d stored entities share it", kind, count),
	}
}

// NewDuplicateKeyError reports that key is held by an entity the payload
// cannot bind to.
func NewDuplicateKeyError(kind model.Kind, key, uid, reason string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateKey,
		Kind:    kind,
		Key:     key,
		UID:     uid,
		Message: fmt.Sprintf("%s %q already exists: %s", model.MustSchema(kind).Label, key, reason),
	}
}

// NewUnresolvedReferenceError reports a missing referenced entity.
func NewUnresolvedReferenceError(kind model.Kind, key string, target model.Kind, name string, cause error) *Error {
	return &Error{
		Code:    ErrCodeUnresolvedReference,
		Kind:    kind,
		Key:     key,
		Message: fmt.Sprintf("referenced entity not found: %s %q", model.MustSchema(target).Label, name),
		Err:     cause,
	}
}
