package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerBasic(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().Info(context.Background(), "test message", String("k", "v"), Int("n", 3), Bool("ok", true))

	out := buf.String()
	for _, want := range []string{"test message", "k=v", "n=3", "ok=true", "source=logger_test.go:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("repair").Warn(context.Background(), "pruned", Int("keys", 4))

	if out := buf.String(); !strings.Contains(out, "repair.keys=4") {
		t.Errorf("named attributes not grouped: %q", out)
	}
}

func TestLoggerRequestID(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Fatalf("RequestID = %q, want req-42", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("RequestID on bare context = %q, want empty", got)
	}

	Get().Info(ctx, "routed")
	if out := buf.String(); !strings.Contains(out, "request_id=req-42") {
		t.Errorf("request id not logged: %q", out)
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer SetLevelString("info")

	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("SetLevelString(warn): %v", err)
	}
	Get().Info(context.Background(), "hidden")
	Get().Debug(context.Background(), "hidden too")
	Get().Error(context.Background(), "visible", Error(context.Canceled))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("suppressed levels leaked: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("error line missing: %q", out)
	}

	if err := SetLevelString("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
