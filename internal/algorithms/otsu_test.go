package algorithms

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcu-image-pipeline/internal/buffer"
)

func grayImage(t testing.TB, width, height int, pix []byte) buffer.Image {
	t.Helper()
	if pix == nil {
		pix = make([]byte, width*height)
	}
	img, err := buffer.NewImage(pix, width, height, buffer.Gray8)
	require.NoError(t, err)
	return img
}

func randomGray(t testing.TB, rng *rand.Rand, width, height int) buffer.Image {
	t.Helper()
	pix := make([]byte, width*height)
	rng.Read(pix)
	return grayImage(t, width, height, pix)
}

func sentinel(n int) []byte {
	pix := make([]byte, n)
	for i := range pix {
		pix[i] = 0xA5
	}
	return pix
}

func TestComputeThresholdClusters(t *testing.T) {
	pix := []byte{
		10, 10, 200, 200,
		10, 10, 200, 200,
		10, 10, 200, 200,
		10, 10, 200, 200,
	}
	in := grayImage(t, 4, 4, pix)

	level, err := ComputeThreshold(in)
	require.NoError(t, err)
	// Every level in [10, 200) separates the clusters equally. Ties keep the
	// first maximum, as the firmware does, so the dark cluster value wins.
	assert.Equal(t, uint8(10), level)

	out := grayImage(t, 4, 4, nil)
	require.NoError(t, ApplyThreshold(in, out, level))
	for i, p := range pix {
		want := byte(0)
		if p == 200 {
			want = 255
		}
		assert.Equal(t, want, out.Pixels()[i], "pixel %d", i)
	}
}

func TestComputeThresholdBimodalReproducesPattern(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pix := make([]byte, 32*32)
	for i := range pix {
		if rng.Intn(3) == 0 {
			pix[i] = 255
		}
	}
	in := grayImage(t, 32, 32, pix)

	level, err := ComputeThreshold(in)
	require.NoError(t, err)
	assert.Less(t, level, uint8(255))

	out := grayImage(t, 32, 32, nil)
	require.NoError(t, ApplyThreshold(in, out, level))
	assert.Equal(t, pix, out.Pixels())
}

func TestComputeThresholdPicksBetweenModes(t *testing.T) {
	// Two spread clusters around 50 and 180.
	rng := rand.New(rand.NewSource(3))
	pix := make([]byte, 64*64)
	for i := range pix {
		if i%2 == 0 {
			pix[i] = byte(40 + rng.Intn(21))
		} else {
			pix[i] = byte(170 + rng.Intn(21))
		}
	}
	level, err := ComputeThreshold(grayImage(t, 64, 64, pix))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, level, uint8(60))
	assert.Less(t, level, uint8(170))
}

func TestComputeThresholdUniformImage(t *testing.T) {
	pix := make([]byte, 16)
	for i := range pix {
		pix[i] = 42
	}
	level, err := ComputeThreshold(grayImage(t, 4, 4, pix))
	require.NoError(t, err)
	assert.Equal(t, uint8(0), level, "no level splits a single intensity")
}

func TestComputeThresholdDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		img := randomGray(t, rng, 1+rng.Intn(40), 1+rng.Intn(40))
		a, err := ComputeThreshold(img)
		require.NoError(t, err)
		b, err := ComputeThreshold(img)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestComputeThresholdRejectsColor(t *testing.T) {
	img, err := buffer.NewImage(make([]byte, 32), 4, 4, buffer.RGB565)
	require.NoError(t, err)

	_, err = ComputeThreshold(img)
	assert.ErrorIs(t, err, buffer.ErrValidation)

	_, err = ComputeThreshold(buffer.Image{})
	assert.ErrorIs(t, err, buffer.ErrValidation)
}

func TestHistogram(t *testing.T) {
	hist, err := Histogram(grayImage(t, 2, 2, []byte{0, 0, 7, 255}))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), hist[0])
	assert.Equal(t, uint32(1), hist[7])
	assert.Equal(t, uint32(1), hist[255])
}

func TestApplyThresholdStrictlyGreater(t *testing.T) {
	in := grayImage(t, 4, 1, []byte{99, 100, 101, 255})
	out := grayImage(t, 4, 1, nil)

	require.NoError(t, ApplyThreshold(in, out, 100))
	assert.Equal(t, []byte{0, 0, 255, 255}, out.Pixels())
}

func TestApplyThresholdIdempotentOnBinary(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	pix := make([]byte, 20*10)
	for i := range pix {
		if rng.Intn(2) == 1 {
			pix[i] = 255
		}
	}
	in := grayImage(t, 20, 10, pix)

	for level := 0; level <= 254; level++ {
		out := grayImage(t, 20, 10, nil)
		require.NoError(t, ApplyThreshold(in, out, uint8(level)))
		require.Equal(t, pix, out.Pixels(), "level %d", level)
	}
}

func TestApplyThresholdInPlace(t *testing.T) {
	img := grayImage(t, 3, 1, []byte{5, 50, 150})
	require.NoError(t, ApplyThreshold(img, img, 49))
	assert.Equal(t, []byte{0, 255, 255}, img.Pixels())
}

func TestApplyThresholdRejectsMismatch(t *testing.T) {
	in := grayImage(t, 4, 4, nil)

	outPix := sentinel(15)
	out := grayImage(t, 5, 3, outPix)
	err := ApplyThreshold(in, out, 10)
	assert.ErrorIs(t, err, buffer.ErrValidation)
	assert.Equal(t, sentinel(15), outPix)

	colorPix := sentinel(32)
	color, err := buffer.NewImage(colorPix, 4, 4, buffer.RGB565)
	require.NoError(t, err)
	assert.ErrorIs(t, ApplyThreshold(in, color, 10), buffer.ErrValidation)
	assert.Equal(t, sentinel(32), colorPix)
}

func TestBinarize(t *testing.T) {
	in := grayImage(t, 2, 2, []byte{10, 10, 200, 200})
	out := grayImage(t, 2, 2, nil)

	level, err := Binarize(in, out)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), level)
	assert.Equal(t, []byte{0, 0, 255, 255}, out.Pixels())
}
