package logging

import (
	"context"
	"reflect"
	"testing"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithSession(ctx, "handle")
	ctx = WithModel(ctx, "Sora 2")
	ctx = WithAgent(ctx, "Sora 2 Pro")
	ctx = WithTaskID(ctx, "t-1")

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"request id", GetRequestID(ctx), "req-123"},
		{"session", GetSession(ctx), "handle"},
		{"model", GetModel(ctx), "Sora 2"},
		{"agent", GetAgent(ctx), "Sora 2 Pro"},
		{"task id", GetTaskID(ctx), "t-1"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestExtractContextFields(t *testing.T) {
	if fields := extractContextFields(context.Background()); len(fields) != 0 {
		t.Errorf("expected no fields, got %v", fields)
	}

	ctx := WithTaskID(WithRequestID(context.Background(), "r"), "t")
	want := []any{"request_id", "r", "task_id", "t"}
	if got := Attrs(ctx); !reflect.DeepEqual(got, want) {
		t.Errorf("Attrs() = %v, want %v", got, want)
	}
}
