package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_LevelsAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "hidden")
	logger.WithAsset("c1", "a1").Info(ctx, "visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "container_id=c1")
	assert.Contains(t, out, "asset_id=a1")
}

func TestLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})
	logger.WithOperation(OpFetchContainer).Debug(context.Background(), "started")

	assert.Contains(t, buf.String(), `"operation":"fetch_container"`)
}

func TestLogger_NopAndNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var nilLogger *Logger

	assert.NotPanics(t, func() {
		nilLogger.Info(ctx, "ignored")
		nilLogger.With("k", "v").Warn(ctx, "ignored")
		NewNop().WithContainer("c").Error(ctx, "ignored")
		LogFetch(ctx, nil, OpFetchImage, time.Second, 10, nil)
	})
	assert.False(t, NewNop().Enabled(ctx, LevelError))
}

func TestLogFetch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf})
	ctx := context.Background()

	LogFetch(ctx, logger, OpFetchContainer, 5*time.Millisecond, 42, nil)
	LogFetch(ctx, logger, OpFetchImage, time.Millisecond, 0, errors.New("boom"))
	LogCacheMiss(ctx, logger, "c1", "a1", "container not fetched")

	out := buf.String()
	assert.Contains(t, out, "fetch completed")
	assert.Contains(t, out, "size=42")
	assert.Contains(t, out, "fetch failed")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "result=miss")
}
