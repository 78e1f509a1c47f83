package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so adapters can map them to status codes and
// error events without inspecting messages.
type Kind string

const (
	KindAuth          Kind = "auth"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindStorage       Kind = "storage"
	KindStreamTimeout Kind = "stream_timeout"
	KindInternal      Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. A nil err yields nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain.
// Errors without a kind are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns a human-readable message safe to show to clients.
// Internal errors are not described.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "internal error"
}

var (
	ErrBadCredentials = Errorf(KindAuth, "invalid credentials")
	ErrTokenExpired   = Errorf(KindAuth, "token expired")

	ErrNotHost    = Errorf(KindAuthorization, "only the host can perform this action")
	ErrNotStudent = Errorf(KindAuthorization, "only a student can perform this action")
	ErrNoAccess   = Errorf(KindAuthorization, "access denied to this recording")
	ErrNotMember  = Errorf(KindAuthorization, "not a participant of this meeting")

	ErrMeetingNotFound   = Errorf(KindNotFound, "meeting not found")
	ErrRecordingNotFound = Errorf(KindNotFound, "recording not found")
	ErrStreamNotFound    = Errorf(KindNotFound, "recording stream not found")
	ErrSessionNotFound   = Errorf(KindNotFound, "session not found")
	ErrOrphanedRecording = Errorf(KindNotFound, "recording object missing in storage")

	ErrCapacity      = Errorf(KindValidation, "maximum participants limit reached")
	ErrDuration      = Errorf(KindValidation, "maximum meeting duration exceeded")
	ErrEmptyChunk    = Errorf(KindValidation, "empty audio chunk received")
	ErrChunkTooLarge = Errorf(KindValidation, "audio chunk too large")
	ErrMissingField  = Errorf(KindValidation, "missing required field")
	ErrBadMode       = Errorf(KindValidation, "unknown mode")

	ErrAlreadyActive      = Errorf(KindConflict, "already active")
	ErrNotJoinable        = Errorf(KindConflict, "meeting is not active")
	ErrBadTransition      = Errorf(KindConflict, "transition not allowed")
	ErrPrivateInProgress  = Errorf(KindConflict, "another private conversation is in progress")
	ErrPrivateChatActive  = Errorf(KindConflict, "private chat already active")
	ErrNoPrivateChat      = Errorf(KindConflict, "no private chat in progress")
	ErrRecordingNotActive = Errorf(KindConflict, "recording is not in progress")
	ErrStreamClosed       = Errorf(KindConflict, "recording stream closed")
	ErrVersionConflict    = Errorf(KindConflict, "document was modified concurrently")

	ErrStreamTimeout = Errorf(KindStreamTimeout, "write timeout")
)
