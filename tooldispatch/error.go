package tooldispatch

import "github.com/evalforge/evalforge/dataset"

// Error is a tool failure that is expected and surfaced back to the model
// as a tool-result message rather than failing the sample (spec §4.5's
// list: Timeout | Permission | UnicodeDecode | OutputLimitExceeded |
// ToolError | ToolParsing | ToolApproval). Tool.Execute has no separate Go
// error return, so every failure a tool reports reaches the model through
// Result.Err; the dispatcher has no path by which a tool failure fails the
// sample.
type Error struct {
	Kind    dataset.ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Timeout constructs a Timeout-kind Error.
func Timeout(msg string) *Error { return &Error{Kind: dataset.ErrorKindTimeout, Message: msg} }

// Permission constructs a Permission-kind Error.
func Permission(msg string) *Error { return &Error{Kind: dataset.ErrorKindPermission, Message: msg} }

// UnicodeDecode constructs a UnicodeDecode-kind Error.
func UnicodeDecode(msg string) *Error {
	return &Error{Kind: dataset.ErrorKindUnicodeDecode, Message: msg}
}

// OutputLimitExceeded constructs an OutputLimitExceeded-kind Error.
func OutputLimitExceeded(msg string) *Error {
	return &Error{Kind: dataset.ErrorKindOutputLimitExceeded, Message: msg}
}

// ToolErr constructs a generic ToolError-kind Error.
func ToolErr(msg string) *Error { return &Error{Kind: dataset.ErrorKindToolError, Message: msg} }

// ToolParsing constructs a ToolParsing-kind Error, used when argument
// validation against the tool's schema fails.
func ToolParsing(msg string) *Error {
	return &Error{Kind: dataset.ErrorKindToolParsing, Message: msg}
}

// ToolApproval constructs a ToolApproval-kind Error, used when the
// approval policy rejects a call.
func ToolApproval(msg string) *Error {
	return &Error{Kind: dataset.ErrorKindToolApproval, Message: msg}
}
