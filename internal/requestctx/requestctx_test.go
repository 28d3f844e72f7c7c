package requestctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := GetRequestID(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

func TestLoggerTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Logger(WithRequestID(context.Background(), "req-7"), base).Info("sealed")
	if !strings.Contains(buf.String(), "requestId=req-7") {
		t.Fatalf("expected request id in log line, got %q", buf.String())
	}

	buf.Reset()
	Logger(context.Background(), base).Info("sealed")
	if strings.Contains(buf.String(), "requestId") {
		t.Fatalf("unexpected request id in %q", buf.String())
	}
}
