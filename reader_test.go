package blp

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphaAt(t *testing.T) {
	one := []byte{0x05}
	assert.Equal(t, uint8(0xff), alphaAt(one, 0, 1))
	assert.Equal(t, uint8(0x00), alphaAt(one, 1, 1))
	assert.Equal(t, uint8(0xff), alphaAt(one, 2, 1))

	four := []byte{0xf3}
	assert.Equal(t, uint8(0x33), alphaAt(four, 0, 4))
	assert.Equal(t, uint8(0xff), alphaAt(four, 1, 4))

	assert.Equal(t, uint8(0x7f), alphaAt([]byte{0x7f}, 0, 8))
	assert.Equal(t, uint8(0xff), alphaAt(nil, 0, 0))
}

func TestDecodeDXT1(t *testing.T) {
	// Red and blue endpoints, four color mode, every pixel uses color 0
	// except the last row which uses color 1
	block := []byte{0x00, 0xf8, 0x1f, 0x00, 0x00, 0x00, 0x00, 0x55}
	b := rawBLP2(t, EncodingDXT, 0, AlphaTypeDXT1, 4, 4, block)

	m, err := Parse(b)
	require.NoError(t, err)
	require.NoError(t, m.Decode(b, Visibility{true}))

	img, ok := m.Mip(0)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{0xff, 0, 0, 0xff}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0, 0, 0xff, 0xff}, img.NRGBAAt(3, 3))
}

func TestDecodeDXT1PunchThrough(t *testing.T) {
	// c0 <= c1 selects three color mode, index 3 is transparent
	block := []byte{0x1f, 0x00, 0x00, 0xf8, 0xff, 0xff, 0xff, 0xff}

	for _, depth := range []uint8{0, 1} {
		b := rawBLP2(t, EncodingDXT, depth, AlphaTypeDXT1, 4, 4, block)
		m, err := Parse(b)
		require.NoError(t, err)
		require.NoError(t, m.Decode(b, Visibility{true}))

		img, _ := m.Mip(0)
		if depth == 0 {
			assert.Equal(t, uint8(0xff), img.NRGBAAt(1, 1).A)
		} else {
			assert.Equal(t, uint8(0x00), img.NRGBAAt(1, 1).A)
		}
	}
}

func TestDecodeDXT3(t *testing.T) {
	block := make([]byte, 16)
	for i := 0; i < 8; i++ {
		block[i] = 0x80 // even pixels 0, odd pixels 0x88
	}
	copy(block[8:], []byte{0xe0, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})

	b := rawBLP2(t, EncodingDXT, 8, AlphaTypeDXT3, 2, 2, block)
	m, err := Parse(b)
	require.NoError(t, err)
	require.NoError(t, m.Decode(b, Visibility{true}))

	img, _ := m.Mip(0)
	assert.Equal(t, color.NRGBA{0, 0xff, 0, 0x00}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0, 0xff, 0, 0x88}, img.NRGBAAt(1, 0))
}

func TestDecodeDXT5(t *testing.T) {
	block := make([]byte, 16)
	block[0], block[1] = 0xff, 0x00
	// Alpha index 1 for every pixel: 0b001 repeated
	var bits uint64
	for i := 0; i < 16; i++ {
		bits |= 1 << (3 * uint(i))
	}
	for i := 0; i < 6; i++ {
		block[2+i] = byte(bits >> (8 * uint(i)))
	}
	binary.LittleEndian.PutUint16(block[8:], 0xffff)

	b := rawBLP2(t, EncodingDXT, 8, AlphaTypeDXT5, 4, 4, block)
	m, err := Parse(b)
	require.NoError(t, err)
	require.NoError(t, m.Decode(b, Visibility{true}))

	img, _ := m.Mip(0)
	assert.Equal(t, color.NRGBA{0xff, 0xff, 0xff, 0x00}, img.NRGBAAt(2, 2))
}

func TestDecodeDXTTruncated(t *testing.T) {
	b := rawBLP2(t, EncodingDXT, 8, AlphaTypeDXT5, 8, 4, make([]byte, 16))
	m, err := Parse(b)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Decode(b, Visibility{true}), ErrParse)
	assert.Equal(t, MipNotDecoded, m.Status(0))
}

func TestDecodeARGB(t *testing.T) {
	data := []byte{
		0x10, 0x20, 0x30, 0x40,
		0x50, 0x60, 0x70, 0x80,
	}
	b := rawBLP2(t, EncodingARGB, 8, 0, 2, 1, data)

	m, err := Parse(b)
	require.NoError(t, err)
	require.NoError(t, m.Decode(b, Visibility{true}))

	img, _ := m.Mip(0)
	assert.Equal(t, color.NRGBA{0x30, 0x20, 0x10, 0x40}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0x70, 0x60, 0x50, 0x80}, img.NRGBAAt(1, 0))
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrParse)

	var m Image
	assert.ErrorIs(t, m.Decode(nil, Visibility{true}), ErrInvalidInput)
}

func TestDecodeNeverPanics(t *testing.T) {
	src := gradient(16, 16, true)

	for _, c := range []Compression{CompressionJPEG, CompressionPalette} {
		v, err := VisibleCount(5)
		require.NoError(t, err)
		valid := encodeTest(t, src, v, &Options{Compression: c, Quality: 75})

		for n := 0; n < len(valid); n += 7 {
			b := append([]byte(nil), valid...)
			b[n] ^= 0xa5
			for _, data := range [][]byte{valid[:n], b} {
				assert.NotPanics(t, func() {
					m, err := Parse(data)
					if err != nil {
						return
					}
					_ = m.Decode(data, v)
				})
			}
		}
	}
}

func TestImageDecode(t *testing.T) {
	src := gradient(8, 4, false)
	b := encodeTest(t, src, Visibility{true}, &Options{Compression: CompressionPalette, Quality: 100})

	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, "blp", format)
	assert.Equal(t, 8, cfg.Width)
	assert.Equal(t, 4, cfg.Height)

	m, format, err := image.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, "blp", format)
	assertSamePixels(t, src, m, 0)
}
