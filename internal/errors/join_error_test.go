package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/paveg/joinbench/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestJoinError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *errors.JoinError
		expected string
	}{
		{
			name:     "Error with field",
			err:      errors.NewConfigurationError("NewTable", "bucket_count", "must be a power of two, got 10"),
			expected: "NewTable configuration error on 'bucket_count': must be a power of two, got 10",
		},
		{
			name:     "Error without field",
			err:      errors.NewPreconditionError("Static", "", "64 items do not divide across 3 threads"),
			expected: "Static precondition error: 64 items do not divide across 3 threads",
		},
		{
			name:     "Error with cause",
			err:      errors.NewInternalError("Probe", stderrors.New("boom")),
			expected: "Probe internal error: internal error occurred: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestJoinError_Unwrap(t *testing.T) {
	cause := stderrors.New("underlying error")
	err := errors.NewInternalError("Build", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
}

func TestJoinError_IsSentinel(t *testing.T) {
	cfg := errors.NewConfigurationError("NewConcurrentTable", "bucket_count", "bad")
	pre := errors.NewPreconditionError("NewGenerator", "batch_size", "bad")

	assert.ErrorIs(t, cfg, errors.ErrConfiguration)
	assert.NotErrorIs(t, cfg, errors.ErrPrecondition)
	assert.ErrorIs(t, pre, errors.ErrPrecondition)
	assert.NotErrorIs(t, pre, errors.ErrConfiguration)

	wrapped := fmt.Errorf("building table: %w", cfg)
	assert.ErrorIs(t, wrapped, errors.ErrConfiguration)

	var je *errors.JoinError
	assert.ErrorAs(t, wrapped, &je)
	assert.Equal(t, "bucket_count", je.Field)
}

func TestJoinError_IsByValue(t *testing.T) {
	a := errors.NewConfigurationError("NewTable", "bucket_count", "bad")
	b := errors.NewConfigurationError("NewTable", "bucket_count", "bad")
	c := errors.NewConfigurationError("NewTable", "partition_count", "bad")

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
	assert.False(t, a.Is(stderrors.New("bad")))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "configuration", errors.KindConfiguration.String())
	assert.Equal(t, "precondition", errors.KindPrecondition.String())
	assert.Equal(t, "internal", errors.KindInternal.String())
	assert.Equal(t, "unknown", errors.Kind(0).String())
}
