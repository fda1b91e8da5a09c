package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/livepeer/dubworker/log"
	"github.com/xeipuuv/gojsonschema"
)

// Code is the structural error taxonomy from the failure-site table (§7).
type Code string

const (
	BadRequest           Code = "BadRequest"
	UnsupportedMedia     Code = "UnsupportedMedia"
	ProbeFailed          Code = "ProbeFailed"
	PayloadTooLarge      Code = "PayloadTooLarge"
	RateLimited          Code = "RateLimited"
	DownloadFailed       Code = "DownloadFailed"
	AudioExtractionError Code = "AudioExtractionError"
	TranscriptionError   Code = "TranscriptionError"
	TranslationError     Code = "TranslationError"
	SubtitleEmitError    Code = "SubtitleEmitError"
	RenderError          Code = "RenderError"
	FormatError          Code = "FormatError"
	TimeoutExceeded      Code = "TimeoutExceeded"
	Infrastructure       Code = "Infrastructure"
	NotFound             Code = "NotFound"
)

// recoverableByDefault records whether each Code is recoverable absent a
// more specific decision made at the call site (e.g. retry exhaustion).
var recoverableByDefault = map[Code]bool{
	BadRequest:           false,
	UnsupportedMedia:     false,
	ProbeFailed:          false,
	PayloadTooLarge:      false,
	RateLimited:          true,
	DownloadFailed:       true,
	AudioExtractionError: false,
	TranscriptionError:   true,
	TranslationError:     true,
	SubtitleEmitError:    false,
	RenderError:          false,
	FormatError:          false,
	TimeoutExceeded:      false,
	Infrastructure:       true,
	NotFound:             false,
}

// TaskError is the `error` object on the Task Record envelope (§3, §7):
// `{code, message, user_message, recoverable}`.
type TaskError struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	UserMessage string `json:"user_message"`
	Recoverable bool   `json:"recoverable"`
	cause       error
}

func (e *TaskError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TaskError) Unwrap() error { return e.cause }

// NewTaskError builds a TaskError, defaulting Recoverable from the code's
// table entry unless the call site knows better (e.g. retries exhausted).
func NewTaskError(code Code, message string, cause error) *TaskError {
	return &TaskError{
		Code:        code,
		Message:     message,
		UserMessage: localize(code, message),
		Recoverable: recoverableByDefault[code],
		cause:       cause,
	}
}

// WithRecoverable overrides the default recoverable flag, e.g. once retries
// have been exhausted for an otherwise-recoverable code.
func (e *TaskError) WithRecoverable(recoverable bool) *TaskError {
	e.Recoverable = recoverable
	return e
}

// localize maps a code/message pair to a user-facing message. Real
// localization (driven by Accept-Language, §7) is left to a caller-supplied
// translation table; this is the default/fallback locale.
func localize(code Code, message string) string {
	switch code {
	case DownloadFailed:
		return "We couldn't download the source file. Please check the link and try again."
	case UnsupportedMedia, ProbeFailed:
		return "This file doesn't look like a supported media file."
	case PayloadTooLarge:
		return "The uploaded file is too large."
	case RateLimited:
		return "Too many requests. Please try again shortly."
	case TranscriptionError:
		return "We couldn't transcribe the audio."
	case TranslationError:
		return "We couldn't translate the transcript."
	case SubtitleEmitError:
		return "We couldn't produce the subtitle file."
	case RenderError:
		return "We couldn't render the video with subtitles."
	case FormatError:
		return "We couldn't finalize the output video format."
	case TimeoutExceeded:
		return "Processing took too long and was stopped."
	default:
		return message
	}
}

// APIError is the HTTP-layer error envelope, in the same shape as
// errors.APIError, extended with the structural code.
type APIError struct {
	Code   Code   `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHttpError(w http.ResponseWriter, code Code, msg string, status int, err error) APIError {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	body := map[string]string{"code": string(code), "error": msg, "error_detail": errorDetail}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", encErr)
	}
	return APIError{code, msg, status, err}
}

func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, BadRequest, msg, http.StatusUnauthorized, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, BadRequest, msg, http.StatusBadRequest, err)
}

func WriteHTTPUnsupportedMediaType(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, UnsupportedMedia, msg, http.StatusBadRequest, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, NotFound, msg, http.StatusNotFound, err)
}

func WriteHTTPPayloadTooLarge(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, PayloadTooLarge, msg, http.StatusRequestEntityTooLarge, err)
}

func WriteHTTPTooManyRequests(w http.ResponseWriter, msg string, retryAfterSec int) APIError {
	w.Header().Set("Retry-After", fmt.Sprint(retryAfterSec))
	return writeHttpError(w, RateLimited, msg, http.StatusTooManyRequests, nil)
}

func WriteHTTPServiceUnavailable(w http.ResponseWriter, msg string, retryAfterSec int) APIError {
	w.Header().Set("Retry-After", fmt.Sprint(retryAfterSec))
	return writeHttpError(w, Infrastructure, msg, http.StatusServiceUnavailable, nil)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, Infrastructure, msg, http.StatusInternalServerError, err)
}

func WriteHTTPBadBodySchema(where string, w http.ResponseWriter, errs []gojsonschema.ResultError) APIError {
	sb := strings.Builder{}
	sb.WriteString("Body validation error in ")
	sb.WriteString(where)
	sb.WriteString(" ")
	for i := 0; i < len(errs); i++ {
		sb.WriteString(errs[i].String())
		sb.WriteString(" ")
	}
	return writeHttpError(w, BadRequest, sb.String(), http.StatusBadRequest, nil)
}

// UnretriableError marks an error as terminal so retry loops (S1 acquire,
// S5 translate) stop instead of burning their backoff budget.
type UnretriableError struct{ error }

func Unretriable(err error) error {
	return UnretriableError{err}
}

func (e UnretriableError) Unwrap() error {
	return e.error
}

func IsUnretriable(err error) bool {
	return errors.As(err, &UnretriableError{})
}

type ObjectNotFoundError struct {
	msg   string
	cause error
}

func (e ObjectNotFoundError) Error() string {
	return e.msg
}

func (e ObjectNotFoundError) Unwrap() error {
	return e.cause
}

func NewObjectNotFoundError(msg string, cause error) error {
	if cause != nil {
		msg = fmt.Sprintf("ObjectNotFoundError: %s: %s", msg, cause)
	} else {
		msg = fmt.Sprintf("ObjectNotFoundError: %s", msg)
	}
	return Unretriable(ObjectNotFoundError{msg: msg, cause: cause})
}

func IsObjectNotFound(err error) bool {
	return errors.As(err, &ObjectNotFoundError{})
}

var (
	UnauthorisedError = errors.New("UnauthorisedError")
	InvalidTokenError = errors.New("InvalidTokenError")
)
