package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPassID     = "pass_id"
	KeySource     = "source"
	KeyCodeID     = "code_id"
	KeyOrder      = "order"
	KeyUserID     = "user_id"
	KeyPlatform   = "platform"
	KeyLanguage   = "language"
	KeyKernelURL  = "kernel_url"
	KeyMsgType    = "msg_type"
	KeyAttempt    = "attempt"
	KeyPhase      = "phase"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyKey        = "key"
	KeyURL        = "url"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func PassID(id string) slog.Attr       { return slog.String(KeyPassID, id) }
func Source(path string) slog.Attr     { return slog.String(KeySource, path) }
func CodeID(id int64) slog.Attr        { return slog.Int64(KeyCodeID, id) }
func Order(o int) slog.Attr            { return slog.Int(KeyOrder, o) }
func UserID(id string) slog.Attr       { return slog.String(KeyUserID, id) }
func Platform(p string) slog.Attr      { return slog.String(KeyPlatform, p) }
func Language(l string) slog.Attr      { return slog.String(KeyLanguage, l) }
func KernelURL(u string) slog.Attr     { return slog.String(KeyKernelURL, u) }
func MsgType(t string) slog.Attr       { return slog.String(KeyMsgType, t) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Phase(p string) slog.Attr         { return slog.String(KeyPhase, p) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Key(k string) slog.Attr           { return slog.String(KeyKey, k) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
