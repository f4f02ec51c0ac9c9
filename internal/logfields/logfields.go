package logfields

import (
	"log/slog"
	"net/url"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyLogContext = "log_context"
	KeyTaskID     = "task_id"
	KeyEvent      = "event"
	KeyRef        = "ref"
	KeyURL        = "url"
	KeyDeployDir  = "deploy_dir"
	KeyDeployURL  = "deploy_url"
	KeyOutcome    = "outcome"
	KeyAttempt    = "attempt"
	KeyExitCode   = "exit_code"
	KeyProgram    = "program"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func LogContext(id string) slog.Attr  { return slog.String(KeyLogContext, id) }
func TaskID(id string) slog.Attr      { return slog.String(KeyTaskID, id) }
func Event(e string) slog.Attr        { return slog.String(KeyEvent, e) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func DeployDir(d string) slog.Attr    { return slog.String(KeyDeployDir, d) }
func DeployURL(u string) slog.Attr    { return slog.String(KeyDeployURL, u) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func Program(p string) slog.Attr      { return slog.String(KeyProgram, p) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(s int) slog.Attr          { return slog.Int(KeyStatus, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// RedactURL strips userinfo from a URL so embedded credentials never
// reach the log stream. Unparsable input passes through untouched.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}
