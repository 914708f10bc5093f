package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "leadbot/cli/internal/errors"
)

func TestNewLevels(t *testing.T) {
	l, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = New(Options{Level: "warn", Verbose: true, Console: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Options{Level: "loud"})
	assert.ErrorContains(t, err, "invalid log level")
}

func TestErrorFieldMasks(t *testing.T) {
	f := Error(errors.New("refresh failed: refresh_token=abc"))
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "refresh failed: refresh_token=***", f.String)

	assert.Equal(t, zap.Skip(), Error(nil))
}

func TestFormatFailure(t *testing.T) {
	out := FormatFailure(apperrors.Transport, "Salesforce session expired", "Bearer abc123")
	assert.Contains(t, out, "Connection Problem")
	assert.Contains(t, out, "leadbot login")
	assert.Contains(t, out, "Bearer ***")
	assert.NotContains(t, out, "abc123")

	out = FormatFailure(apperrors.RecordNotFound, `no Lead named "X" was found`, "")
	assert.Contains(t, out, "Command Failed")
	assert.Contains(t, out, "rephrasing")
	assert.NotContains(t, out, "Technical details")
}
