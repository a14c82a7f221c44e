package analyzer

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"testing"

	"nido/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayFrame(t *testing.T, level uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestLuminanceAnalyzer_StableSceneIsCalm(t *testing.T) {
	a := NewLuminanceAnalyzer(12)
	ctx := context.Background()

	_, err := a.Analyze(ctx, grayFrame(t, 100))
	require.NoError(t, err)

	result, err := a.Analyze(ctx, grayFrame(t, 102))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCalm, result.Status)
}

func TestLuminanceAnalyzer_LargeChangeIsMotion(t *testing.T) {
	a := NewLuminanceAnalyzer(12)
	ctx := context.Background()

	_, err := a.Analyze(ctx, grayFrame(t, 40))
	require.NoError(t, err)

	result, err := a.Analyze(ctx, grayFrame(t, 200))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMotion, result.Status)
	assert.NotEmpty(t, result.Description)
}

func TestLuminanceAnalyzer_FirstFrameIsCalm(t *testing.T) {
	a := NewLuminanceAnalyzer(12)

	result, err := a.Analyze(context.Background(), grayFrame(t, 200))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCalm, result.Status)
}

func TestLuminanceAnalyzer_UndecodableFrame(t *testing.T) {
	a := NewLuminanceAnalyzer(12)

	result, err := a.Analyze(context.Background(), []byte("not a jpeg"))
	require.Error(t, err)
	assert.Equal(t, domain.StatusUnknown, result.Status)
}
