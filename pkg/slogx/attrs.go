package slogx

import (
	"fmt"
	"log/slog"
)

const (
	// KeyLoggerName is the key for the name of the component that logged.
	KeyLoggerName = "logger"
	// KeyError is the key used for error attributes.
	KeyError = "error"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
//
// Parameters:
//   - err: The error to be converted into a slog.Attr.
//
// Returns:
//   - slog.Attr: An attribute with the key "error" and the error's message as the value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "<nil>")
	}
	return slog.String(KeyError, err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value. A nil value is logged as "<nil>".
func Stringer(key string, value fmt.Stringer) slog.Attr {
	if value == nil {
		return slog.String(key, "<nil>")
	}
	return slog.String(key, value.String())
}

// Handle logs a transport handle by its id. Handles are accepted as any value
// with an ID method so this package stays free of transport imports.
func Handle(key string, h interface{ ID() string }) slog.Attr {
	if h == nil {
		return slog.String(key, "<nil>")
	}
	return slog.String(key, h.ID())
}

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}
