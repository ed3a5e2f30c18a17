package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskContent(t *testing.T) {
	t.Run("short text is kept", func(t *testing.T) {
		assert.Equal(t, "你好", MaskContent("你好", 50))
	})

	t.Run("long text is truncated with digest", func(t *testing.T) {
		in := strings.Repeat("测", 60)
		out := MaskContent(in, 50)

		assert.True(t, strings.HasPrefix(out, strings.Repeat("测", 50)+"...["))
		assert.True(t, strings.HasSuffix(out, "]"))
		assert.Len(t, []rune(out), 50+4+8+1)
		assert.Equal(t, out, MaskContent(in, 50))
	})
}

func TestFromContextAddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")
	defer Init("info", "json")

	ctx := WithContext(context.Background(), RequestIDKey, "req-1")
	ctx = WithContext(ctx, TraceIDKey, "trace-1")
	Info(ctx, "hello", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "trace-1", rec["trace_id"])
	assert.Equal(t, "v", rec["k"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in).String(), in)
	}
}
