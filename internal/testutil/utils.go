// Package testutil holds small helpers shared by tests.
package testutil

import (
	"io"
	"log/slog"
)

func Ptr[T any](v T) *T {
	return &v
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
