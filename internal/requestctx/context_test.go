package requestctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerAddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithContext(context.Background(), &Context{RequestID: "req-1", ClientIP: "10.0.0.7"})
	Logger(ctx, base).Info("report saved")

	line := buf.String()
	if !strings.Contains(line, "request_id=req-1") || !strings.Contains(line, "client_ip=10.0.0.7") {
		t.Fatalf("expected request fields in %q", line)
	}
}

func TestLoggerWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Logger(context.Background(), base).Info("report saved")
	if strings.Contains(buf.String(), "request_id") {
		t.Fatalf("unexpected request fields in %q", buf.String())
	}
	if _, ok := FromContext(WithContext(context.Background(), nil)); ok {
		t.Fatalf("nil request context should not be reported")
	}
}
