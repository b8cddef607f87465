package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys consistently
// across log statements so aggregated logs stay queryable.
const (
	// Request correlation
	KeyRequestID = "request_id" // Per-request identifier from the HTTP middleware
	KeySessionID = "session_id" // SRP session UUID

	// HTTP
	KeyMethod = "method" // HTTP method
	KeyPath   = "path"   // Request path
	KeyStatus = "status" // HTTP status code

	// Client identification
	KeyClientIP = "client_ip" // Client IP address
	KeyUsername = "username"  // Authenticated username

	// Vault operations
	KeyFilename = "filename" // File or directory name
	KeyOldPath  = "old_path" // Source path for renames
	KeyNewPath  = "new_path" // Destination path for renames
	KeySize     = "size"     // Size in bytes

	// Outcome
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Failure or rejection reason
	KeyDurationMs = "duration_ms" // Elapsed time in milliseconds
)

// Attr helpers. These keep key names consistent without stringly-typed call
// sites. The request_id and client_ip keys are normally injected from the
// LogContext instead.

func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Err returns an error attr, or an empty attr for nil errors so call sites
// need no nil checks.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
