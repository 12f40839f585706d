package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcu-image-pipeline/internal/algorithms"
	"mcu-image-pipeline/internal/buffer"
)

func TestSyntheticSourceIsBimodal(t *testing.T) {
	pix, err := SyntheticSource{}.Load("", 32, 24, buffer.Gray8)
	require.NoError(t, err)
	require.Len(t, pix, 32*24)

	img, err := buffer.NewImage(pix, 32, 24, buffer.Gray8)
	require.NoError(t, err)
	level, err := algorithms.ComputeThreshold(img)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, level, uint8(55))
	assert.Less(t, level, uint8(190))

	assert.Greater(t, pix[12*32+16], level, "center is foreground")
	assert.LessOrEqual(t, pix[0], level, "corner is background")
}

func TestSyntheticSourceColor(t *testing.T) {
	pix, err := SyntheticSource{}.Load("ignored.png", 16, 16, buffer.RGB565)
	require.NoError(t, err)
	require.Len(t, pix, 16*16*2)

	color, err := buffer.NewImage(pix, 16, 16, buffer.RGB565)
	require.NoError(t, err)
	gray, err := buffer.NewImage(make([]byte, 16*16), 16, 16, buffer.Gray8)
	require.NoError(t, err)
	require.NoError(t, algorithms.ToGrayscale(color, gray))
	assert.Greater(t, gray.Pixels()[8*16+8], gray.Pixels()[0])
}

func TestSyntheticSourceRejectsBadShape(t *testing.T) {
	_, err := SyntheticSource{}.Load("", 0, 4, buffer.Gray8)
	assert.Error(t, err)
	_, err = SyntheticSource{}.Load("", 4, 4, buffer.Encoding(9))
	assert.Error(t, err)
}
