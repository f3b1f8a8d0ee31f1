package blp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawBLP2 builds a BLP2 file with a single mip level directly after the
// header.
func rawBLP2(t *testing.T, enc Encoding, depth, alphaType uint8, w, h uint32, data []byte) []byte {
	t.Helper()

	hdr := Header{
		Format:      FormatBLP2,
		Compression: CompressionPalette,
		Encoding:    enc,
		AlphaDepth:  depth,
		AlphaType:   alphaType,
		Width:       w,
		Height:      h,
	}
	hdr.Mips[0] = MipEntry{Offset: blp2HeaderSize, Length: uint32(len(data))}

	b, err := hdr.MarshalBinary()
	require.NoError(t, err)
	return append(b, data...)
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatBLP1, FormatBLP2} {
		t.Run(f.String(), func(t *testing.T) {
			in := Header{
				Format:      f,
				Compression: CompressionPalette,
				Encoding:    EncodingPalette,
				AlphaDepth:  4,
				HasMipmaps:  true,
				Width:       64,
				Height:      32,
			}
			if f == FormatBLP1 {
				in.Extra = 4
			}
			in.Mips[0] = MipEntry{Offset: 1180, Length: 3072}
			in.Mips[1] = MipEntry{Offset: 4252, Length: 768}

			b, err := in.MarshalBinary()
			require.NoError(t, err)
			assert.Len(t, b, in.Size())
			assert.Equal(t, f.String(), string(b[:4]))

			var out Header
			require.NoError(t, out.UnmarshalBinary(b))
			assert.Equal(t, in, out)
		})
	}
}

func TestParseErrors(t *testing.T) {
	valid := rawBLP2(t, EncodingARGB, 8, 0, 1, 1, []byte{1, 2, 3, 4})

	corrupt := func(f func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		f(b)
		return b
	}

	tables := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("BLP2")},
		{"magic", corrupt(func(b []byte) { copy(b, "PNG!") })},
		{"blp0", corrupt(func(b []byte) { copy(b, "BLP0") })},
		{"zero width", corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[12:], 0) })},
		{"zero height", corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[16:], 0) })},
		{"compression", corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[4:], 9) })},
		{"encoding", corrupt(func(b []byte) { b[8] = 7 })},
		{"alpha depth", corrupt(func(b []byte) { b[9] = 3 })},
		{"mip outside file", corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[84:], 5) })},
		{"no mips", corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[84:], 0) })},
		{"truncated palette", rawBLP2(t, EncodingPalette, 0, 0, 1, 1, []byte{0})},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			_, err := Parse(table.data)
			assert.ErrorIs(t, err, ErrParse)
			assert.False(t, IsValid(table.data))
		})
	}

	m, err := Parse(valid)
	require.NoError(t, err)
	assert.Equal(t, 1, m.MipCount())
	assert.True(t, IsValid(valid))
}

func TestParseIgnoresImpossibleMips(t *testing.T) {
	b := rawBLP2(t, EncodingARGB, 0, 0, 2, 1, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	// Claim mipmaps and point levels 1 and 2 at the same data; a 2x1
	// image only has two levels
	b[11] = 1
	for i := 1; i < 3; i++ {
		binary.LittleEndian.PutUint32(b[20+i*4:], blp2HeaderSize)
		binary.LittleEndian.PutUint32(b[84+i*4:], 4)
	}

	m, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, 2, m.MipCount())
	assert.Equal(t, MipNotDecoded, m.Status(1))
	assert.Equal(t, MipAbsent, m.Status(2))
}
