package blp

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"strings"
)

// MipStatus describes what is known about a mip level.
type MipStatus int

const (
	// MipAbsent means the file has no data for the level.
	MipAbsent MipStatus = iota
	// MipNotDecoded means the data exists but has not been requested.
	MipNotDecoded
	// MipDecoded means the level holds a decoded raster.
	MipDecoded
)

func (s MipStatus) String() string {
	switch s {
	case MipNotDecoded:
		return "not decoded"
	case MipDecoded:
		return "decoded"
	}
	return "absent"
}

// Visibility selects which mip levels to decode or encode.
type Visibility [MaxMips]bool

// VisibleCount returns a Visibility selecting the first n mip levels.
func VisibleCount(n int) (Visibility, error) {
	var v Visibility
	if n < 1 || n > MaxMips {
		return v, fmt.Errorf("%w: mip count %d outside 1-%d", ErrInvalidInput, n, MaxMips)
	}
	for i := 0; i < n; i++ {
		v[i] = true
	}
	return v, nil
}

// VisibleOnly returns a Visibility selecting only mip level i.
func VisibleOnly(i int) (Visibility, error) {
	var v Visibility
	if i < 0 || i >= MaxMips {
		return v, fmt.Errorf("%w: mip index %d outside 0-%d", ErrInvalidInput, i, MaxMips-1)
	}
	v[i] = true
	return v, nil
}

// ParseVisibility reads a list of 0/1 flags such as "1,1,0,1". Separators
// are optional and may be commas, semicolons or spaces. Missing levels are
// not visible.
func ParseVisibility(s string) (Visibility, error) {
	var v Visibility
	var n int
	for _, r := range s {
		switch r {
		case '0', '1':
			if n == MaxMips {
				return v, fmt.Errorf("%w: more than %d mip flags", ErrInvalidInput, MaxMips)
			}
			v[n] = r == '1'
			n++
		case ',', ';', ' ':
		default:
			return v, fmt.Errorf("%w: bad mip flag %q", ErrInvalidInput, r)
		}
	}
	return v, nil
}

// Any reports whether at least one level is selected.
func (v Visibility) Any() bool {
	for _, b := range v {
		if b {
			return true
		}
	}
	return false
}

func (v Visibility) String() string {
	var sb strings.Builder
	for i, b := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

type mip struct {
	status MipStatus
	image  *image.NRGBA
}

// Image is a parsed BLP file together with whichever mip levels have been
// decoded so far. An Image must not be decoded into from more than one
// goroutine at a time.
type Image struct {
	Header

	// Palette is shared by every palette encoded mip level.
	Palette [PaletteSize]color.NRGBA
	// JPEGHeader is prepended to every JPEG mip level.
	JPEGHeader []byte

	mips [MaxMips]mip
}

// Parse reads the header, mip table and shared palette or JPEG header from
// data. No pixel data is decoded.
func Parse(data []byte) (*Image, error) {
	m := new(Image)
	if err := m.Header.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	o := m.Header.Size()
	switch {
	case m.Compression == CompressionJPEG:
		if len(data) < o+jpegHeaderLength {
			return nil, fmt.Errorf("%w: missing JPEG header", ErrParse)
		}
		n := binary.LittleEndian.Uint32(data[o:])
		o += jpegHeaderLength
		if n > maxJPEGHeader || uint64(o)+uint64(n) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: JPEG header of %d bytes is truncated", ErrParse, n)
		}
		m.JPEGHeader = append([]byte(nil), data[o:o+int(n)]...)
	case m.Encoding == EncodingPalette:
		if len(data) < o+paletteBytes {
			return nil, fmt.Errorf("%w: palette is truncated", ErrParse)
		}
		for i := range m.Palette {
			p := data[o+i*4:]
			// Stored as BGRA, the alpha byte is not used
			m.Palette[i] = color.NRGBA{p[2], p[1], p[0], 0xff}
		}
	}

	levels := mipLevels(m.Width, m.Height)
	for i, e := range m.Mips {
		if !e.Present() || i >= levels || (i > 0 && !m.HasMipmaps) {
			m.Mips[i] = MipEntry{}
			continue
		}
		if uint64(e.Offset)+uint64(e.Length) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: mip %d at %d+%d is outside the file", ErrParse, i, e.Offset, e.Length)
		}
		m.mips[i].status = MipNotDecoded
	}

	if m.Mips.Count() == 0 {
		return nil, fmt.Errorf("%w: no mip levels", ErrParse)
	}

	return m, nil
}

// IsValid reports whether data can be parsed as a BLP file.
func IsValid(data []byte) bool {
	_, err := Parse(data)
	return err == nil
}

// Decode decodes every mip level that is both present and selected by
// visible. Levels decoded by earlier calls are kept. If any selected level
// fails to decode no level is updated.
func (m *Image) Decode(data []byte, visible Visibility) (err error) {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty buffer", ErrInvalidInput)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	var decoded [MaxMips]*image.NRGBA
	for i, e := range m.Mips {
		if !visible[i] || !e.Present() {
			continue
		}
		if uint64(e.Offset)+uint64(e.Length) > uint64(len(data)) {
			return fmt.Errorf("%w: mip %d at %d+%d is outside the buffer", ErrParse, i, e.Offset, e.Length)
		}

		w, h := mipSize(m.Width, m.Height, i)
		d := decoder{
			m:     m,
			data:  data[e.Offset : e.Offset+e.Length],
			width: w, height: h,
		}
		if decoded[i], err = d.decode(); err != nil {
			return fmt.Errorf("mip %d: %w", i, err)
		}
	}

	for i, img := range decoded {
		if img != nil {
			m.mips[i] = mip{status: MipDecoded, image: img}
		}
	}

	return nil
}

// Status returns the state of mip level i.
func (m *Image) Status(i int) MipStatus {
	if i < 0 || i >= MaxMips {
		return MipAbsent
	}
	return m.mips[i].status
}

// Mip returns the decoded raster for level i, if it has been decoded.
func (m *Image) Mip(i int) (*image.NRGBA, bool) {
	if m.Status(i) != MipDecoded {
		return nil, false
	}
	return m.mips[i].image, true
}

// MipBounds returns the dimensions of level i whether or not it is present.
func (m *Image) MipBounds(i int) image.Rectangle {
	w, h := mipSize(m.Width, m.Height, i)
	return image.Rect(0, 0, w, h)
}
