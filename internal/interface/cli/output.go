package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
)

// Exit codes for graphctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the store rejected the operation or an audit found drift
	ExitCommandError = 2 // bad flags, unknown backend, unreachable store
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// reported is set once the error has been written to the output.
	reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error; plain errors map to
// ExitCommandError since cobra returns them for usage problems.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// Reported tells main whether err was already printed.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// Response is the JSON envelope of every graphctl result.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError mirrors the HTTP error body.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Output writes results as text or JSON.
type Output struct {
	Format string
	Writer io.Writer
}

// Success writes data. text renders the human form.
func (o *Output) Success(data any, text func(w io.Writer)) error {
	if o.Format == FormatJSON {
		return json.NewEncoder(o.Writer).Encode(Response{Status: "ok", Data: data})
	}
	text(o.Writer)
	return nil
}

// Fail writes err and returns the ExitError the command should return.
func (o *Output) Fail(err error) error {
	code, exit := classify(err)
	message := publicMessage(err)
	if o.Format == FormatJSON {
		_ = json.NewEncoder(o.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message},
		})
	} else {
		fmt.Fprintf(o.Writer, "error [%s]: %s\n", code, message)
	}
	return &ExitError{Code: exit, Message: message, Err: err, reported: true}
}

// classify maps an error to the HTTP error codes and an exit code.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, shared.ErrNotFollowing):
		return "not_following", ExitFailure
	case errors.Is(err, shared.ErrUserExists):
		return "user_exists", ExitFailure
	case shared.IsAlreadyExists(err):
		return "already_following", ExitFailure
	case shared.IsValidation(err):
		return "validation_error", ExitFailure
	case shared.IsNotFound(err):
		return "not_found", ExitFailure
	case shared.IsStore(err):
		return "store_error", ExitFailure
	default:
		return "command_error", ExitCommandError
	}
}

// publicMessage drops the "domain.Op:" prefix of domain errors and keeps
// any context wrapped around them.
func publicMessage(err error) string {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	if prefix, ok := strings.CutSuffix(err.Error(), de.Error()); ok {
		return prefix + de.Message
	}
	return de.Message
}
