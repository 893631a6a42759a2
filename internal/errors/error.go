package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig   Category = "config"
	CategoryNetwork  Category = "network"
	CategoryProtocol Category = "protocol"
	CategoryCLI      Category = "cli"
)

// Location is a position in a configuration file.
type Location struct {
	File string
	Line int
}

// String returns the location as file:line.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a structured error with a code, explanation and hint.
type Error struct {
	// Code is a unique error identifier (e.g., "NT101").
	Code string

	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location points into a configuration file, if relevant.
	Location *Location

	// Context contains the lines around Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a command or snippet that works.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithLocation points the error at a line of file.
func (e *Error) WithLocation(file string, line int) *Error {
	e.Location = &Location{File: file, Line: line}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithLocationFromError extracts the line of a TOML parse error.
func (e *Error) WithLocationFromError(file string, err error) *Error {
	var perr toml.ParseError
	if stderrors.As(err, &perr) && perr.Position.Line > 0 {
		return e.WithLocation(file, perr.Position.Line)
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithExample adds an example to the error.
func (e *Error) WithExample(ex string) *Error {
	e.Example = ex
	return e
}

// WithDetail replaces the registered explanation.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// contextStart is the line number of Context[0].
func (e *Error) contextStart() int {
	start := e.Location.Line - 2
	if start < 1 {
		start = 1
	}
	return start
}

// New creates an Error from a registered code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates an Error with a formatted message and no code.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err under code unless it already is an *Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}
