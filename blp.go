/*
Package blp implements a BLP texture decoder and encoder.

A BLP file is a fixed header followed by a table shared by every mip level and
then the mip data itself. All integers are little-endian.

BLP1 headers are 156 bytes: the "BLP1" magic, then the compression, alpha
depth, width, height, picture type and has-mipmaps fields as 32-bit values,
followed by sixteen mip offsets and sixteen mip lengths. BLP2 headers are 148
bytes: the "BLP2" magic, a 32-bit compression field, single byte encoding,
alpha depth, alpha type and has-mipmaps fields, the 32-bit width and height
and the same mip offset and length tables.

Palette compressed files follow the header with 256 BGRA palette entries. Each
mip is one palette index per pixel followed by an alpha plane packed at 1, 4 or
8 bits per pixel. BLP2 files may instead store DXT1/3/5 blocks or raw BGRA
pixels.

JPEG compressed files follow the header with a 32-bit length and a JPEG header
shared by every mip. Prepending it to a mip's data produces a complete JPEG
stream. When the alpha depth is 8 the mip data ends with one alpha byte per
pixel.
*/
package blp

import "errors"

// LibraryVersion identifies this implementation.
const LibraryVersion = "blp 0.1.0"

const (
	// MaxMips is the number of slots in the mip table.
	MaxMips = 16

	// PaletteSize is the number of entries in the shared palette.
	PaletteSize = 256

	blp1HeaderSize   = 156
	blp2HeaderSize   = 148
	paletteBytes     = PaletteSize * 4
	jpegHeaderLength = 4

	// Arbitrary upper bounds, real files use well under 1 KB of JPEG
	// header and 4096 pixels on a side
	maxJPEGHeader = 64 << 10
	maxDimension  = 1 << 16
)

var (
	// ErrInvalidInput is returned for arguments rejected before any data is
	// examined, such as an empty buffer or an out of range mip index.
	ErrInvalidInput = errors.New("blp: invalid input")

	// ErrParse is returned when BLP data is malformed or truncated.
	ErrParse = errors.New("blp: parse error")

	// ErrEncode is returned when a source image cannot be encoded.
	ErrEncode = errors.New("blp: encode error")

	// ErrExport is returned when a mip cannot be exported.
	ErrExport = errors.New("blp: export error")
)

// Format is the file format version given by the magic tag.
type Format uint8

const (
	// FormatBLP1 files start with "BLP1".
	FormatBLP1 Format = iota + 1
	// FormatBLP2 files start with "BLP2".
	FormatBLP2
)

var magics = map[Format]string{
	FormatBLP1: "BLP1",
	FormatBLP2: "BLP2",
}

func (f Format) String() string {
	if m, ok := magics[f]; ok {
		return m
	}
	return "unknown"
}

// Compression selects how the mip data is stored.
type Compression uint32

const (
	// CompressionJPEG stores each mip as a JPEG stream sharing one header.
	CompressionJPEG Compression = iota
	// CompressionPalette stores pixels directly, palette indexed unless a
	// BLP2 encoding says otherwise.
	CompressionPalette
)

func (c Compression) String() string {
	switch c {
	case CompressionJPEG:
		return "jpeg"
	case CompressionPalette:
		return "palette"
	}
	return "unknown"
}

// Encoding is the BLP2 pixel encoding used with CompressionPalette.
type Encoding uint8

const (
	// EncodingPalette is 8-bit palette indices plus an alpha plane.
	EncodingPalette Encoding = iota + 1
	// EncodingDXT is DXT1, DXT3 or DXT5 blocks selected by the alpha type.
	EncodingDXT
	// EncodingARGB is uncompressed BGRA pixels.
	EncodingARGB
)

func (e Encoding) String() string {
	switch e {
	case EncodingPalette:
		return "palette"
	case EncodingDXT:
		return "dxt"
	case EncodingARGB:
		return "argb"
	}
	return "none"
}

// DXT alpha types
const (
	AlphaTypeDXT1 uint8 = 0
	AlphaTypeDXT3 uint8 = 1
	AlphaTypeDXT5 uint8 = 7
)

func validAlphaDepth(d uint8) bool {
	switch d {
	case 0, 1, 4, 8:
		return true
	}
	return false
}

// mipSize returns the dimensions of mip i for a base of w by h pixels.
func mipSize(w, h uint32, i int) (int, int) {
	mw, mh := int(w>>uint(i)), int(h>>uint(i))
	if mw < 1 {
		mw = 1
	}
	if mh < 1 {
		mh = 1
	}
	return mw, mh
}

// mipLevels returns how many mip levels exist before both dimensions reach
// one pixel, capped at MaxMips.
func mipLevels(w, h uint32) int {
	n := 1
	for (w>>uint(n-1) > 1 || h>>uint(n-1) > 1) && n < MaxMips {
		n++
	}
	return n
}
