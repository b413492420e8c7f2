// Package errcode defines the structured protocol errors surfaced by group and
// file-store operations.
package errcode

import (
    "errors"
    "fmt"
)

// Local error codes. Server-reported codes are passed through unchanged.
const (
    GroupNotJoined        int64 = -20
    MemberNotExists       int64 = -30
    RiskMessageFailure    int64 = -70
    SensitiveWordsFailure int64 = -80
)

var messages = map[int64]string{
    GroupNotJoined:        "not a member of this group",
    MemberNotExists:       "group member does not exist",
    RiskMessageFailure:    "group message not confirmed, it may have been blocked by risk control",
    SensitiveWordsFailure: "group message fragments not confirmed, check the message content",
}

// Error is a protocol error carrying a numeric code and a message.
type Error struct {
    Code    int64
    Message string
}

func (e *Error) Error() string {
    if e.Message == "" { return fmt.Sprintf("groupchat: error %d", e.Code) }
    return fmt.Sprintf("groupchat: %s (%d)", e.Message, e.Code)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
    var t *Error
    if !errors.As(target, &t) { return false }
    return t.Code == e.Code
}

// New returns an error for one of the local codes with its canonical message.
func New(code int64) *Error {
    return &Error{Code: code, Message: messages[code]}
}

// Server returns an error for a non-zero status reported by the server.
func Server(code int64, msg string) *Error {
    if msg == "" { msg = messages[code] }
    return &Error{Code: code, Message: msg}
}

// CodeOf returns the code of err if it wraps an *Error, else 0.
func CodeOf(err error) int64 {
    var e *Error
    if errors.As(err, &e) { return e.Code }
    return 0
}

// IsNotFound reports whether err means the group or member is gone.
func IsNotFound(err error) bool {
    switch CodeOf(err) {
    case GroupNotJoined, MemberNotExists:
        return true
    }
    return false
}

// IsContentRejected reports whether err is a content-path send failure. The
// message may or may not have been delivered; it must not be retried blindly.
func IsContentRejected(err error) bool {
    switch CodeOf(err) {
    case RiskMessageFailure, SensitiveWordsFailure:
        return true
    }
    return false
}
