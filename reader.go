package blp

import (
	"fmt"
	"image"
	"image/color"
	"io"
)

func init() {
	for _, magic := range magics {
		image.RegisterFormat("blp", magic, Decode, DecodeConfig)
	}
}

type decoder struct {
	m *Image

	// Raw data for one mip level
	data []byte

	width  int
	height int
}

func (d *decoder) decode() (*image.NRGBA, error) {
	switch d.m.Compression {
	case CompressionJPEG:
		return d.decodeJPEG()
	case CompressionPalette:
		switch d.m.Encoding {
		case EncodingPalette:
			return d.decodePalette()
		case EncodingDXT:
			return d.decodeDXT()
		case EncodingARGB:
			return d.decodeARGB()
		}
		return nil, fmt.Errorf("%w: unknown encoding %d", ErrParse, d.m.Encoding)
	}
	return nil, fmt.Errorf("%w: unknown compression %d", ErrParse, d.m.Compression)
}

// alphaBytes returns the size of an alpha plane for n pixels.
func alphaBytes(n int, depth uint8) int {
	return (n*int(depth) + 7) / 8
}

// alphaAt unpacks the alpha of pixel i from a plane packed at depth bits.
func alphaAt(plane []byte, i int, depth uint8) uint8 {
	switch depth {
	case 1:
		if plane[i>>3]&(1<<uint(i&7)) != 0 {
			return 0xff
		}
		return 0x00
	case 4:
		// Even pixels use the low nibble
		n := plane[i>>1] >> (uint(i&1) << 2) & 0x0f
		return n<<4 | n
	case 8:
		return plane[i]
	}
	return 0xff
}

func (d *decoder) decodePalette() (*image.NRGBA, error) {
	n := d.width * d.height
	need := n + alphaBytes(n, d.m.AlphaDepth)
	if len(d.data) < need {
		return nil, fmt.Errorf("%w: palette data truncated (%d < %d bytes)", ErrParse, len(d.data), need)
	}

	img := image.NewNRGBA(image.Rect(0, 0, d.width, d.height))
	indices, plane := d.data[:n], d.data[n:]

	for i, idx := range indices {
		c := d.m.Palette[idx]
		p := img.Pix[i*4 : i*4+4 : i*4+4]
		p[0] = c.R
		p[1] = c.G
		p[2] = c.B
		p[3] = alphaAt(plane, i, d.m.AlphaDepth)
	}

	return img, nil
}

// Decode reads a BLP file from r and returns its largest mip level as an
// image.Image.
func Decode(r io.Reader) (image.Image, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := m.Decode(b, Visibility{true}); err != nil {
		return nil, err
	}
	img, ok := m.Mip(0)
	if !ok {
		return nil, fmt.Errorf("%w: no base mip level", ErrParse)
	}
	return img, nil
}

// DecodeConfig returns the color model and dimensions of a BLP file without
// decoding any mip level.
func DecodeConfig(r io.Reader) (image.Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	m, err := Parse(b)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      int(m.Width),
		Height:     int(m.Height),
	}, nil
}
