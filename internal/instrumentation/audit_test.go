package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

const (
	testSession = "01J0000000000000000000000A"
	testTool    = "get_sleep_by_date_range"
)

func attrMap(attrs []slog.Attr) map[string]slog.Value {
	m := make(map[string]slog.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func TestToolInvocation_Complete(t *testing.T) {
	ti := NewToolInvocation(testTool)
	if ti.StartTime.IsZero() {
		t.Fatal("StartTime should be set")
	}

	ti.Complete(true, nil)
	if !ti.Success || ti.Error != "" || ti.Status() != StatusSuccess {
		t.Errorf("unexpected success state: %+v", ti)
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}

	failed := NewToolInvocation(testTool).Complete(false, errors.New("rate limited"))
	if failed.Status() != StatusError || failed.Error != "rate limited" {
		t.Errorf("unexpected failure state: %+v", failed)
	}
}

func TestToolInvocation_WithEndpointNormalizes(t *testing.T) {
	ti := NewToolInvocation(testTool).
		WithEndpoint("/1.2/user/-/sleep/date/2024-01-01/2024-01-07.json")

	want := "/1.2/user/{user}/sleep/date/{date}/{date}.json"
	if got := ti.Endpoints(); len(got) != 1 || got[0] != want {
		t.Errorf("Endpoints = %v, want [%s]", got, want)
	}
}

func TestToolInvocation_WithEndpointConcurrent(t *testing.T) {
	ti := NewToolInvocation("get_daily_overview")
	paths := []string{
		"/1/user/-/activities/date/2024-01-01.json",
		"/1.2/user/-/sleep/date/2024-01-01.json",
		"/1/user/-/foods/log/date/2024-01-01.json",
	}

	var wg sync.WaitGroup
	for range 50 {
		for _, p := range paths {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ti.WithEndpoint(p)
				_ = ti.LogAttrs(false)
			}()
		}
	}
	wg.Wait()

	if got := len(ti.Endpoints()); got != 50*len(paths) {
		t.Errorf("recorded %d endpoints, want %d", got, 50*len(paths))
	}
}

func TestToolInvocation_LogAttrs(t *testing.T) {
	ti := NewToolInvocation(testTool).WithSession(testSession).Complete(false, errors.New("boom"))
	ti.TraceID = "abc"

	with := attrMap(ti.LogAttrs(true))
	if with["session_id"].String() != testSession {
		t.Errorf("session_id = %q", with["session_id"].String())
	}
	if with["error"].String() != "boom" {
		t.Errorf("error = %q", with["error"].String())
	}
	if with["trace_id"].String() != "abc" {
		t.Errorf("trace_id = %q", with["trace_id"].String())
	}

	without := attrMap(ti.LogAttrs(false))
	if _, ok := without["session_id"]; ok {
		t.Error("session_id should be omitted")
	}
	if _, ok := without["endpoints"]; ok {
		t.Error("endpoints should be omitted when empty")
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation(testTool).WithSpanContext(context.Background())
	if ti.TraceID != "" || ti.SpanID != "" {
		t.Errorf("expected empty ids, got %q %q", ti.TraceID, ti.SpanID)
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true, IncludeSessionID: true})

	al.LogToolInvocation(context.Background(), NewToolInvocation(testTool).WithSession(testSession).Complete(true, nil))
	al.LogToolInvocation(context.Background(), NewToolInvocation(testTool).Complete(false, errors.New("nope")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d: %s", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first["msg"] != "tool.executed" || first["level"] != "INFO" || first["session_id"] != testSession {
		t.Errorf("unexpected first record: %v", first)
	}
	if second["msg"] != "tool.failed" || second["level"] != "WARN" {
		t.Errorf("unexpected second record: %v", second)
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogToolInvocation(context.Background(), NewToolInvocation(testTool).Complete(true, nil))
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogToolInvocation(context.Background(), NewToolInvocation(testTool))
}
