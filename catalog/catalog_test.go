package catalog

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bodgit/blp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texture(t *testing.T, c color.NRGBA) ([]byte, *blp.Header) {
	t.Helper()

	m := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = c.R, c.G, c.B, c.A
	}

	v, err := blp.VisibleCount(2)
	require.NoError(t, err)

	b := new(bytes.Buffer)
	require.NoError(t, blp.Encode(b, m, v, &blp.Options{Compression: blp.CompressionPalette, Quality: 100}))

	img, err := blp.Parse(b.Bytes())
	require.NoError(t, err)

	return b.Bytes(), &img.Header
}

func openTest(t *testing.T) *Catalog {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), "blp.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close())
	})

	return c
}

func TestAddAndLoad(t *testing.T) {
	c := openTest(t)

	red, h := texture(t, color.NRGBA{R: 0xff, A: 0xff})

	scan, err := c.BeginScan("/textures")
	require.NoError(t, err)
	assert.Len(t, scan, 36)

	hash, err := c.Add(scan, "a/red.blp", red, h)
	require.NoError(t, err)
	assert.Equal(t, Hash(red), hash)

	tex, err := c.Find(hash)
	require.NoError(t, err)
	require.NotNil(t, tex)
	assert.Equal(t, blp.FormatBLP1, tex.Format)
	assert.Equal(t, blp.CompressionPalette, tex.Compression)
	assert.Equal(t, blp.EncodingPalette, tex.Encoding)
	assert.Equal(t, uint32(8), tex.Width)
	assert.Equal(t, uint32(4), tex.Height)
	assert.Equal(t, 2, tex.Mips)
	assert.Equal(t, len(red), tex.Size)
	assert.Equal(t, []string{"a/red.blp"}, tex.Paths)

	b, err := c.Load(hash)
	require.NoError(t, err)
	assert.Equal(t, red, b)
}

func TestAddDeduplicates(t *testing.T) {
	c := openTest(t)

	red, h := texture(t, color.NRGBA{R: 0xff, A: 0xff})
	blue, hb := texture(t, color.NRGBA{B: 0xff, A: 0xff})

	scan, err := c.BeginScan("/textures")
	require.NoError(t, err)

	first, err := c.Add(scan, "red.blp", red, h)
	require.NoError(t, err)
	second, err := c.Add(scan, "copy/red.blp", red, h)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = c.Add(scan, "blue.blp", blue, hb)
	require.NoError(t, err)

	textures, locations, err := c.Count(scan)
	require.NoError(t, err)
	assert.Equal(t, 2, textures)
	assert.Equal(t, 3, locations)

	tex, err := c.Find(first)
	require.NoError(t, err)
	assert.Equal(t, []string{"copy/red.blp", "red.blp"}, tex.Paths)
}

func TestAddConcurrent(t *testing.T) {
	c := openTest(t)

	red, h := texture(t, color.NRGBA{R: 0xff, A: 0xff})

	for round := 0; round < 20; round++ {
		scan, err := c.BeginScan("/textures")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = c.Add(scan, fmt.Sprintf("%d.blp", i), red, h)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		textures, locations, err := c.Count(scan)
		require.NoError(t, err)
		assert.Equal(t, 1, textures)
		assert.Equal(t, 10, locations)
	}
}

func TestScansAreSeparate(t *testing.T) {
	c := openTest(t)

	red, h := texture(t, color.NRGBA{R: 0xff, A: 0xff})

	first, err := c.BeginScan("/textures")
	require.NoError(t, err)
	second, err := c.BeginScan("/textures")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = c.Add(first, "red.blp", red, h)
	require.NoError(t, err)

	_, locations, err := c.Count(second)
	require.NoError(t, err)
	assert.Zero(t, locations)
}

func TestFindMissing(t *testing.T) {
	c := openTest(t)

	tex, err := c.Find("0123456789abcdef")
	assert.NoError(t, err)
	assert.Nil(t, tex)

	b, err := c.Load("0123456789abcdef")
	assert.NoError(t, err)
	assert.Nil(t, b)
}

func TestReopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blp.db")
	red, h := texture(t, color.NRGBA{R: 0xff, A: 0xff})

	c, err := Open(file)
	require.NoError(t, err)
	scan, err := c.BeginScan("/textures")
	require.NoError(t, err)
	hash, err := c.Add(scan, "red.blp", red, h)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(file)
	require.NoError(t, err)
	defer c.Close()

	b, err := c.Load(hash)
	require.NoError(t, err)
	assert.Equal(t, red, b)
}
