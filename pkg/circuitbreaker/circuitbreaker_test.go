package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAnalyze = errors.New("model not loaded")

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             50 * time.Millisecond,
		MaxRequestsHalfOpen: 2,
	}
}

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb := New(testConfig())

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errAnalyze })
	}
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls are rejected without invoking fn.
	called := false
	err := cb.Execute(context.Background(), func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
}

func TestExecute_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errAnalyze })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_FailureWhileProbingReopens(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errAnalyze })
	}
	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error { return errAnalyze })
	assert.Equal(t, StateOpen, cb.State())
}

func TestExecute_WrapsCause(t *testing.T) {
	cb := New(testConfig())
	err := cb.Execute(context.Background(), func() error { return errAnalyze })
	assert.True(t, errors.Is(err, errAnalyze))
}

func TestReset(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errAnalyze })
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
