package core

import (
	"errors"
	"net/http"
	"sort"
)

// Repository sentinels. Core turns them into ErrorCodes at its boundary.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Kind classifies an ErrorCode.
type Kind int

const (
	KindSuccess Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuthorization
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	case KindAuthorization:
		return "authorization"
	}
	return "internal"
}

// An ErrorCode is a domain result with a stable code string and an HTTP-like status.
// All ErrorCodes except Success are errors.
type ErrorCode struct {
	Code    string
	Kind    Kind
	Status  int // http status
	Message string
}

func (e *ErrorCode) Error() string {
	return e.Message
}

func (e *ErrorCode) IsSuccess() bool {
	return e == nil || e.Kind == KindSuccess
}

var errorCodes = make(map[string]*ErrorCode)

func newErrorCode(code string, kind Kind, status int, message string) *ErrorCode {
	if _, ok := errorCodes[code]; ok {
		panic("duplicate error code " + code)
	}
	var e = &ErrorCode{
		Code:    code,
		Kind:    kind,
		Status:  status,
		Message: message,
	}
	errorCodes[code] = e
	return e
}

// LookupErrorCode returns the registered ErrorCode with the given code.
func LookupErrorCode(code string) (*ErrorCode, bool) {
	e, ok := errorCodes[code]
	return e, ok
}

// AllErrorCodes returns the registered codes in alphabetical order.
func AllErrorCodes() []string {
	var all = make([]string, 0, len(errorCodes))
	for code := range errorCodes {
		all = append(all, code)
	}
	sort.Strings(all)
	return all
}

// AsErrorCode unwraps err to an ErrorCode. Errors which are not ErrorCodes become ErrInternal.
func AsErrorCode(err error) *ErrorCode {
	if err == nil {
		return Success
	}
	var e *ErrorCode
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

var Success = newErrorCode("SUCCESS", KindSuccess, http.StatusOK, "success")

// validation
var (
	ErrTitleEmpty          = newErrorCode("ERROR_TITLE_EMPTY", KindValidation, http.StatusBadRequest, "title is empty")
	ErrTitleTooLong        = newErrorCode("ERROR_TITLE_TOO_LONG", KindValidation, http.StatusBadRequest, "title is too long")
	ErrBodyEmpty           = newErrorCode("ERROR_CONTENT_EMPTY", KindValidation, http.StatusBadRequest, "content is empty")
	ErrBodyTooShort        = newErrorCode("ERROR_CONTENT_TOO_SHORT", KindValidation, http.StatusBadRequest, "content is too short")
	ErrBodyTooLong         = newErrorCode("ERROR_CONTENT_TOO_LONG", KindValidation, http.StatusBadRequest, "content is too long")
	ErrBannedTerm          = newErrorCode("ERROR_CONTENT_BANNED_TERM", KindValidation, http.StatusBadRequest, "content contains a banned term")
	ErrContentTypeUnknown  = newErrorCode("ERROR_CONTENT_TYPE_UNKNOWN", KindValidation, http.StatusBadRequest, "unknown content type")
	ErrInvalidReviewStatus = newErrorCode("ERROR_REVIEW_STATUS_INVALID", KindValidation, http.StatusBadRequest, "invalid review status")
	ErrMalformedRequest    = newErrorCode("ERROR_REQUEST_MALFORMED", KindValidation, http.StatusBadRequest, "malformed request body")
)

// conflict
var (
	ErrReviewFinished    = newErrorCode("ERROR_REVIEW_FINISHED", KindConflict, http.StatusConflict, "review job is already finished")
	ErrReviewDuplicate   = newErrorCode("ERROR_REVIEW_DUPLICATE", KindConflict, http.StatusConflict, "content is already in the review queue")
	ErrInvalidTransition = newErrorCode("ERROR_CONTENT_STATUS_TRANSITION", KindConflict, http.StatusConflict, "content status can't change this way")
	ErrCallbackStatus    = newErrorCode("ERROR_PUBLISH_CALLBACK_STATUS", KindConflict, http.StatusConflict, "publish callback decided an invalid status")
)

// not found
var (
	ErrContentNotFound   = newErrorCode("ERROR_CONTENT_NOT_FOUND", KindNotFound, http.StatusNotFound, "content not found")
	ErrReviewJobNotFound = newErrorCode("ERROR_REVIEW_JOB_NOT_FOUND", KindNotFound, http.StatusNotFound, "review job not found")
	ErrUserNotFound      = newErrorCode("ERROR_USER_NOT_FOUND", KindNotFound, http.StatusNotFound, "user not found")
)

// authorization
var (
	ErrUnauthenticated = newErrorCode("ERROR_UNAUTHENTICATED", KindAuthorization, http.StatusUnauthorized, "login required")
	ErrLoginFailed     = newErrorCode("ERROR_LOGIN_FAILED", KindAuthorization, http.StatusUnauthorized, "wrong username or password")
	ErrForbidden       = newErrorCode("ERROR_FORBIDDEN", KindAuthorization, http.StatusForbidden, "forbidden")
	ErrNotYourReview   = newErrorCode("ERROR_REVIEW_NOT_ASSIGNED", KindAuthorization, http.StatusForbidden, "review job is assigned to somebody else")
	ErrNoReviewer      = newErrorCode("ERROR_REVIEWER_INVALID", KindAuthorization, http.StatusForbidden, "user does not hold the reviewer authority")
)

var ErrInternal = newErrorCode("ERROR_INTERNAL", KindInternal, http.StatusInternalServerError, "internal error")
