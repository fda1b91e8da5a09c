package video

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFpsFraction(t *testing.T) {
	fps, err := parseFps("30000/1001")
	require.NoError(t, err)
	require.InDelta(t, 29.97, fps, 0.01)
}

func TestParseFpsPlainNumber(t *testing.T) {
	fps, err := parseFps("25")
	require.NoError(t, err)
	require.Equal(t, 25.0, fps)
}

func TestParseFpsZeroOverZeroIsZero(t *testing.T) {
	fps, err := parseFps("0/0")
	require.NoError(t, err)
	require.Equal(t, 0.0, fps)
}

func TestParseFpsInvalidDenominator(t *testing.T) {
	_, err := parseFps("30/0")
	require.Error(t, err)
}

func TestParseFpsEmpty(t *testing.T) {
	fps, err := parseFps("")
	require.NoError(t, err)
	require.Equal(t, 0.0, fps)
}
