package qhsm

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/logtags"
)

// Logger is the logger used by machines, active objects, brokers and groups
// that were not given one explicitly.
var Logger = slog.Default()

// withTags appends the context's log tags, if any, to a record's attributes.
func withTags(ctx context.Context, args ...any) []any {
	if ctx == nil {
		return args
	}
	if tags := logtags.FromContext(ctx); tags != nil {
		return append(args, slog.String("tags", tags.String()))
	}
	return args
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Logger
}
