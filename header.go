package blp

import (
	"encoding/binary"
	"fmt"
)

// MipEntry locates one mip level's data within a buffer.
type MipEntry struct {
	Offset uint32
	Length uint32
}

// Present reports whether the entry refers to any data.
func (e MipEntry) Present() bool {
	return e.Length != 0
}

// MipTable is the fixed directory of mip levels, indexed by level.
type MipTable [MaxMips]MipEntry

// Count returns the number of present entries.
func (t *MipTable) Count() int {
	var n int
	for _, e := range t {
		if e.Present() {
			n++
		}
	}
	return n
}

// Header is the fixed-size metadata block at the front of a BLP file. It
// implements the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler
// interfaces.
type Header struct {
	Format      Format
	Compression Compression
	// Encoding is only stored by BLP2; BLP1 palette files always use
	// EncodingPalette and JPEG files have none.
	Encoding   Encoding
	AlphaDepth uint8
	// AlphaType selects the DXT variant for BLP2 EncodingDXT.
	AlphaType uint8
	// Extra is the BLP1 picture type, 4 with alpha and 5 without.
	Extra      uint32
	HasMipmaps bool
	Width      uint32
	Height     uint32
	Mips       MipTable
}

// Size returns the number of bytes taken by the fixed header.
func (h *Header) Size() int {
	if h.Format == FormatBLP2 {
		return blp2HeaderSize
	}
	return blp1HeaderSize
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// MarshalBinary encodes the fixed header into binary form and returns the
// result.
func (h *Header) MarshalBinary() ([]byte, error) {
	magic, ok := magics[h.Format]
	if !ok {
		return nil, fmt.Errorf("%w: unknown format %d", ErrEncode, h.Format)
	}

	b := make([]byte, h.Size())
	le := binary.LittleEndian
	copy(b[0:4], magic)
	le.PutUint32(b[4:], uint32(h.Compression))

	var o int
	switch h.Format {
	case FormatBLP1:
		le.PutUint32(b[8:], uint32(h.AlphaDepth))
		le.PutUint32(b[12:], h.Width)
		le.PutUint32(b[16:], h.Height)
		le.PutUint32(b[20:], h.Extra)
		le.PutUint32(b[24:], boolToUint(h.HasMipmaps))
		o = 28
	case FormatBLP2:
		b[8] = byte(h.Encoding)
		b[9] = h.AlphaDepth
		b[10] = h.AlphaType
		b[11] = byte(boolToUint(h.HasMipmaps))
		le.PutUint32(b[12:], h.Width)
		le.PutUint32(b[16:], h.Height)
		o = 20
	}

	for i, e := range h.Mips {
		le.PutUint32(b[o+i*4:], e.Offset)
		le.PutUint32(b[o+MaxMips*4+i*4:], e.Length)
	}

	return b, nil
}

// UnmarshalBinary decodes the fixed header from binary form. Only the header
// fields are checked; mip entries are validated against the file by Parse.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrParse, len(b))
	}

	switch string(b[0:4]) {
	case "BLP1":
		h.Format = FormatBLP1
	case "BLP2":
		h.Format = FormatBLP2
	case "BLP0":
		return fmt.Errorf("%w: BLP0 files with external mips are not supported", ErrParse)
	default:
		return fmt.Errorf("%w: bad magic %q", ErrParse, b[0:4])
	}

	if len(b) < h.Size() {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrParse, len(b))
	}

	le := binary.LittleEndian
	h.Compression = Compression(le.Uint32(b[4:]))

	var o int
	switch h.Format {
	case FormatBLP1:
		depth := le.Uint32(b[8:])
		if depth > 8 {
			return fmt.Errorf("%w: invalid alpha depth %d", ErrParse, depth)
		}
		h.AlphaDepth = uint8(depth)
		h.AlphaType = 0
		h.Width = le.Uint32(b[12:])
		h.Height = le.Uint32(b[16:])
		h.Extra = le.Uint32(b[20:])
		h.HasMipmaps = le.Uint32(b[24:]) != 0
		h.Encoding = 0
		if h.Compression == CompressionPalette {
			h.Encoding = EncodingPalette
		}
		o = 28
	case FormatBLP2:
		h.Encoding = Encoding(b[8])
		h.AlphaDepth = b[9]
		h.AlphaType = b[10]
		h.HasMipmaps = b[11] != 0
		h.Width = le.Uint32(b[12:])
		h.Height = le.Uint32(b[16:])
		h.Extra = 0
		if h.Compression == CompressionJPEG {
			h.Encoding = 0
		}
		o = 20
	}

	for i := range h.Mips {
		h.Mips[i] = MipEntry{
			Offset: le.Uint32(b[o+i*4:]),
			Length: le.Uint32(b[o+MaxMips*4+i*4:]),
		}
	}

	return h.validate()
}

func (h *Header) validate() error {
	if h.Width == 0 || h.Height == 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrParse, h.Width, h.Height)
	}
	if h.Width > maxDimension || h.Height > maxDimension {
		return fmt.Errorf("%w: dimensions %dx%d too large", ErrParse, h.Width, h.Height)
	}
	if !validAlphaDepth(h.AlphaDepth) {
		return fmt.Errorf("%w: invalid alpha depth %d", ErrParse, h.AlphaDepth)
	}

	switch h.Compression {
	case CompressionJPEG:
		if h.AlphaDepth != 0 && h.AlphaDepth != 8 {
			return fmt.Errorf("%w: invalid JPEG alpha depth %d", ErrParse, h.AlphaDepth)
		}
	case CompressionPalette:
		switch h.Encoding {
		case EncodingPalette, EncodingARGB:
		case EncodingDXT:
			switch h.AlphaType {
			case AlphaTypeDXT1, AlphaTypeDXT3, AlphaTypeDXT5:
			default:
				return fmt.Errorf("%w: unknown DXT alpha type %d", ErrParse, h.AlphaType)
			}
		default:
			return fmt.Errorf("%w: unknown encoding %d", ErrParse, h.Encoding)
		}
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrParse, h.Compression)
	}

	return nil
}

// MipCount returns the number of mip levels present in the table.
func (h *Header) MipCount() int {
	return h.Mips.Count()
}
