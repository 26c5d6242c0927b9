package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"PassID", KeyPassID, "p1", PassID("p1")},
		{"Source", KeySource, "a.md", Source("a.md")},
		{"CodeID", KeyCodeID, "42", CodeID(42)},
		{"Order", KeyOrder, "3", Order(3)},
		{"UserID", KeyUserID, "plot", UserID("plot")},
		{"Platform", KeyPlatform, "sage", Platform("sage")},
		{"Language", KeyLanguage, "python", Language("python")},
		{"KernelURL", KeyKernelURL, "ws://k/", KernelURL("ws://k/")},
		{"MsgType", KeyMsgType, "stream", MsgType("stream")},
		{"Attempt", KeyAttempt, "2", Attempt(2)},
		{"Phase", KeyPhase, "render", Phase("render")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Key", KeyKey, "7/plot.png", Key("7/plot.png")},
		{"URL", KeyURL, "http://example", URL("http://example")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

func TestErrorHelper(t *testing.T) {
	if a := Error(nil); a.Key != KeyError || a.Value.String() != "" {
		t.Fatalf("nil error attr mismatch: %v", a)
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("expected boom got %s", a.Value.String())
	}
}
