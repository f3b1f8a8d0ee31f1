package blp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // accepted by EncodeSource
	_ "image/png" // accepted by EncodeSource
	"io"
	"sort"

	"github.com/ericpauley/go-quantize/quantize"
	_ "golang.org/x/image/bmp"  // accepted by EncodeSource
	_ "golang.org/x/image/tiff" // accepted by EncodeSource
	_ "golang.org/x/image/webp" // accepted by EncodeSource
)

// DefaultQuality is the quality used when no Options are given.
const DefaultQuality = 90

// Options are the encoding parameters.
type Options struct {
	// Format defaults to FormatBLP1 when zero.
	Format Format
	// Compression is CompressionJPEG when zero.
	Compression Compression
	// Quality ranges from 0 to 100 inclusive, higher is better. It is the
	// JPEG quality or, for palettes, how many colors the quantizer may use
	// when the source has more than 256.
	Quality int
	// AlphaDepth is 0, 1, 4 or 8 bits per pixel. Zero chooses 8 if any
	// pixel is not opaque and no alpha plane otherwise. JPEG only supports
	// 0 or 8.
	AlphaDepth uint8
}

type level struct {
	index int
	image *image.NRGBA
	data  []byte
}

type encoder struct {
	w io.Writer

	header  Header
	quality int
	levels  []level

	palette    [PaletteSize]color.NRGBA
	jpegHeader []byte
}

func validateOptions(visible Visibility, o *Options) (Options, error) {
	opts := Options{Quality: DefaultQuality}
	if o != nil {
		opts = *o
	}
	if opts.Format == 0 {
		opts.Format = FormatBLP1
	}

	switch {
	case !visible.Any():
		return opts, fmt.Errorf("%w: no mip levels selected", ErrInvalidInput)
	case opts.Quality < 0 || opts.Quality > 100:
		return opts, fmt.Errorf("%w: quality %d outside 0-100", ErrInvalidInput, opts.Quality)
	case opts.Format != FormatBLP1 && opts.Format != FormatBLP2:
		return opts, fmt.Errorf("%w: unknown format %d", ErrInvalidInput, opts.Format)
	case !validAlphaDepth(opts.AlphaDepth):
		return opts, fmt.Errorf("%w: invalid alpha depth %d", ErrInvalidInput, opts.AlphaDepth)
	}

	switch opts.Compression {
	case CompressionJPEG:
		if opts.AlphaDepth != 0 && opts.AlphaDepth != 8 {
			return opts, fmt.Errorf("%w: JPEG alpha depth must be 0 or 8", ErrInvalidInput)
		}
	case CompressionPalette:
	default:
		return opts, fmt.Errorf("%w: unknown compression %d", ErrInvalidInput, opts.Compression)
	}

	return opts, nil
}

// downsample halves src with a 2x2 box filter, repeating the last row or
// column when a dimension is odd.
func downsample(src *image.NRGBA) *image.NRGBA {
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := sw/2, sh/2
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	for dy := 0; dy < dh; dy++ {
		sy0 := dy * 2
		sy1 := sy0 + 1
		if sy1 > sh-1 {
			sy1 = sh - 1
		}
		for dx := 0; dx < dw; dx++ {
			sx0 := dx * 2
			sx1 := sx0 + 1
			if sx1 > sw-1 {
				sx1 = sw - 1
			}

			p0 := src.PixOffset(sx0, sy0)
			p1 := src.PixOffset(sx1, sy0)
			p2 := src.PixOffset(sx0, sy1)
			p3 := src.PixOffset(sx1, sy1)
			d := dst.PixOffset(dx, dy)
			for c := 0; c < 4; c++ {
				sum := int(src.Pix[p0+c]) + int(src.Pix[p1+c]) + int(src.Pix[p2+c]) + int(src.Pix[p3+c])
				dst.Pix[d+c] = uint8((sum + 2) / 4)
			}
		}
	}

	return dst
}

func hasAlpha(m *image.NRGBA) bool {
	for i := 3; i < len(m.Pix); i += 4 {
		if m.Pix[i] != 0xff {
			return true
		}
	}
	return false
}

// packAlpha stores the alpha of pixel i into a plane packed at depth bits.
func packAlpha(plane []byte, i int, a, depth uint8) {
	switch depth {
	case 1:
		if a >= 0x80 {
			plane[i>>3] |= 1 << uint(i&7)
		}
	case 4:
		plane[i>>1] |= a >> 4 << (uint(i&1) << 2)
	case 8:
		plane[i] = a
	}
}

// paletteColors maps quality to the number of colors the quantizer may use.
func paletteColors(quality int) int {
	return 2 + quality*(PaletteSize-2)/100
}

func packRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// buildPalette chooses the shared palette from every level being encoded.
func (e *encoder) buildPalette() color.Palette {
	var height, width int
	for _, l := range e.levels {
		height += l.image.Rect.Dy()
		if w := l.image.Rect.Dx(); w > width {
			width = w
		}
	}

	// Stack every level into one opaque image, padding with the first
	// pixel so it doesn't introduce a new color
	union := image.NewNRGBA(image.Rect(0, 0, width, height))
	first := color.NRGBA{e.levels[0].image.Pix[0], e.levels[0].image.Pix[1], e.levels[0].image.Pix[2], 0xff}
	draw.Draw(union, union.Bounds(), image.NewUniform(first), image.Point{}, draw.Src)

	unique := make(map[uint32]struct{})
	var y int
	for _, l := range e.levels {
		for ly := 0; ly < l.image.Rect.Dy(); ly++ {
			for lx := 0; lx < l.image.Rect.Dx(); lx++ {
				s := l.image.PixOffset(lx, ly)
				d := union.PixOffset(lx, y+ly)
				copy(union.Pix[d:d+3], l.image.Pix[s:s+3])
				union.Pix[d+3] = 0xff
				unique[packRGB(l.image.Pix[s], l.image.Pix[s+1], l.image.Pix[s+2])] = struct{}{}
			}
		}
		y += l.image.Rect.Dy()
	}

	if len(unique) <= PaletteSize {
		keys := make([]uint32, 0, len(unique))
		for k := range unique {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		p := make(color.Palette, 0, len(keys))
		for _, k := range keys {
			p = append(p, color.NRGBA{uint8(k >> 16), uint8(k >> 8), uint8(k), 0xff})
		}
		return p
	}

	q := quantize.MedianCutQuantizer{}
	return q.Quantize(make(color.Palette, 0, paletteColors(e.quality)), union)
}

func (e *encoder) encodePalette() error {
	p := e.buildPalette()
	if len(p) == 0 || len(p) > PaletteSize {
		return fmt.Errorf("%w: quantizer returned %d colors", ErrEncode, len(p))
	}
	for i, c := range p {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		n.A = 0xff
		e.palette[i] = n
	}

	cache := make(map[uint32]uint8)
	depth := e.header.AlphaDepth
	for i, l := range e.levels {
		n := l.image.Rect.Dx() * l.image.Rect.Dy()
		data := make([]byte, n+alphaBytes(n, depth))
		indices, plane := data[:n], data[n:]

		for j := 0; j < n; j++ {
			s := l.image.Pix[j*4 : j*4+4 : j*4+4]
			k := packRGB(s[0], s[1], s[2])
			idx, ok := cache[k]
			if !ok {
				idx = uint8(p.Index(color.NRGBA{s[0], s[1], s[2], 0xff}))
				cache[k] = idx
			}
			indices[j] = idx
			packAlpha(plane, j, s[3], depth)
		}

		e.levels[i].data = data
	}

	return nil
}

func (e *encoder) write() error {
	h := &e.header
	o := h.Size()
	switch h.Compression {
	case CompressionJPEG:
		o += jpegHeaderLength + len(e.jpegHeader)
	case CompressionPalette:
		o += paletteBytes
	}

	for _, l := range e.levels {
		h.Mips[l.index] = MipEntry{
			Offset: uint32(o),
			Length: uint32(len(l.data)),
		}
		o += len(l.data)
	}

	b, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	buf := bytes.NewBuffer(make([]byte, 0, o))
	buf.Write(b)

	switch h.Compression {
	case CompressionJPEG:
		var tmp [jpegHeaderLength]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(e.jpegHeader)))
		buf.Write(tmp[:])
		buf.Write(e.jpegHeader)
	case CompressionPalette:
		var tmp [4]byte
		for _, c := range e.palette {
			// Written as BGRA
			tmp[0], tmp[1], tmp[2], tmp[3] = c.B, c.G, c.R, 0xff
			buf.Write(tmp[:])
		}
	}

	for _, l := range e.levels {
		buf.Write(l.data)
	}

	_, err = buf.WriteTo(e.w)
	return err
}

func (e *encoder) encode() error {
	switch e.header.Compression {
	case CompressionJPEG:
		if err := e.encodeJPEG(); err != nil {
			return err
		}
	case CompressionPalette:
		if err := e.encodePalette(); err != nil {
			return err
		}
	}
	return e.write()
}

// Encode writes the Image m to w in BLP format. The mip levels selected by
// visible are generated by repeatedly halving m; the rest are left absent.
// Levels smaller than 1x1 do not exist and are ignored. If o is nil the
// BLP1 JPEG defaults are used with DefaultQuality.
func Encode(w io.Writer, m image.Image, visible Visibility, o *Options) error {
	if m == nil {
		return fmt.Errorf("%w: no image", ErrInvalidInput)
	}
	opts, err := validateOptions(visible, o)
	if err != nil {
		return err
	}
	return encodeImage(w, m, visible, opts)
}

// EncodeSource decodes src, which may be any registered image format
// including PNG, JPEG, GIF, BMP, TIFF, WebP and BLP, and writes it to w in BLP format as Encode
// does.
func EncodeSource(w io.Writer, src []byte, visible Visibility, o *Options) error {
	if len(src) == 0 {
		return fmt.Errorf("%w: empty source", ErrInvalidInput)
	}
	opts, err := validateOptions(visible, o)
	if err != nil {
		return err
	}
	m, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return encodeImage(w, m, visible, opts)
}

func encodeImage(w io.Writer, m image.Image, visible Visibility, opts Options) error {
	b := m.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: image is empty", ErrEncode)
	}
	if b.Dx() > maxDimension || b.Dy() > maxDimension {
		return fmt.Errorf("%w: image is too large", ErrEncode)
	}

	// Adjust image so that top-left corner is at (0, 0)
	base := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(base, base.Bounds(), m, b.Min, draw.Src)

	e := encoder{
		w:       w,
		quality: opts.Quality,
		header: Header{
			Format:      opts.Format,
			Compression: opts.Compression,
			AlphaDepth:  opts.AlphaDepth,
			Width:       uint32(b.Dx()),
			Height:      uint32(b.Dy()),
		},
	}

	last := -1
	for i := 0; i < mipLevels(e.header.Width, e.header.Height); i++ {
		if visible[i] {
			last = i
		}
	}
	if last < 0 {
		return fmt.Errorf("%w: no selected mip level exists for %dx%d", ErrEncode, b.Dx(), b.Dy())
	}

	current := base
	for i := 0; i <= last; i++ {
		if i > 0 {
			current = downsample(current)
		}
		if visible[i] {
			e.levels = append(e.levels, level{index: i, image: current})
			if i > 0 {
				e.header.HasMipmaps = true
			}
		}
	}

	if e.header.AlphaDepth == 0 && hasAlpha(base) {
		e.header.AlphaDepth = 8
	}
	if e.header.Compression == CompressionPalette {
		e.header.Encoding = EncodingPalette
	}
	if e.header.Format == FormatBLP1 {
		e.header.Extra = 5
		if e.header.AlphaDepth != 0 {
			e.header.Extra = 4
		}
	}

	return e.encode()
}
