package blp

import (
	"encoding/binary"
	"fmt"
	"image"
)

// set writes a pixel directly into an image.NRGBA.
func set(img *image.NRGBA, x, y int, r, g, b, a uint8) {
	i := y*img.Stride + x*4
	img.Pix[i+0] = r
	img.Pix[i+1] = g
	img.Pix[i+2] = b
	img.Pix[i+3] = a
}

// rgb565 expands a packed 16-bit color to 8 bits per channel.
func rgb565(c uint16) (r, g, b uint8) {
	r = uint8(c >> 11 & 0x1f)
	g = uint8(c >> 5 & 0x3f)
	b = uint8(c & 0x1f)
	return r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2
}

// colorBlock builds the four colors of a DXT color block. Three color mode
// is only possible for DXT1 where index 3 is transparent black.
func colorBlock(c0, c1 uint16, dxt1 bool) [4][4]uint8 {
	r0, g0, b0 := rgb565(c0)
	r1, g1, b1 := rgb565(c1)

	p := [4][4]uint8{
		{r0, g0, b0, 0xff},
		{r1, g1, b1, 0xff},
	}

	if c0 > c1 || !dxt1 {
		p[2] = [4]uint8{
			uint8((2*int(r0) + int(r1)) / 3),
			uint8((2*int(g0) + int(g1)) / 3),
			uint8((2*int(b0) + int(b1)) / 3),
			0xff,
		}
		p[3] = [4]uint8{
			uint8((int(r0) + 2*int(r1)) / 3),
			uint8((int(g0) + 2*int(g1)) / 3),
			uint8((int(b0) + 2*int(b1)) / 3),
			0xff,
		}
	} else {
		p[2] = [4]uint8{
			uint8((int(r0) + int(r1)) / 2),
			uint8((int(g0) + int(g1)) / 2),
			uint8((int(b0) + int(b1)) / 2),
			0xff,
		}
		p[3] = [4]uint8{0, 0, 0, 0}
	}

	return p
}

// alphaBlock builds the eight alpha values used by DXT5.
func alphaBlock(a0, a1 uint8) [8]uint8 {
	var p [8]uint8
	p[0], p[1] = a0, a1

	if a0 > a1 {
		for i := 2; i < 8; i++ {
			p[i] = uint8(((8-i)*int(a0) + (i-1)*int(a1)) / 7)
		}
	} else {
		for i := 2; i < 6; i++ {
			p[i] = uint8(((6-i)*int(a0) + (i-1)*int(a1)) / 5)
		}
		p[6] = 0
		p[7] = 0xff
	}

	return p
}

func (d *decoder) decodeDXT() (*image.NRGBA, error) {
	blockSize := 16
	if d.m.AlphaType == AlphaTypeDXT1 {
		blockSize = 8
	}

	bw := (d.width + 3) / 4
	bh := (d.height + 3) / 4
	if need := bw * bh * blockSize; len(d.data) < need {
		return nil, fmt.Errorf("%w: DXT data truncated (%d < %d bytes)", ErrParse, len(d.data), need)
	}

	img := image.NewNRGBA(image.Rect(0, 0, d.width, d.height))
	le := binary.LittleEndian
	offset := 0

	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			block := d.data[offset : offset+blockSize]
			offset += blockSize

			var alpha [16]uint8
			color := block
			switch d.m.AlphaType {
			case AlphaTypeDXT1:
				for i := range alpha {
					alpha[i] = 0xff
				}
			case AlphaTypeDXT3:
				for i := range alpha {
					n := block[i>>1] >> (uint(i&1) << 2) & 0x0f
					alpha[i] = n<<4 | n
				}
				color = block[8:]
			case AlphaTypeDXT5:
				a := alphaBlock(block[0], block[1])
				var bits uint64
				for i := 0; i < 6; i++ {
					bits |= uint64(block[2+i]) << (8 * uint(i))
				}
				for i := range alpha {
					alpha[i] = a[bits>>(3*uint(i))&0x07]
				}
				color = block[8:]
			}

			dxt1 := d.m.AlphaType == AlphaTypeDXT1
			colors := colorBlock(le.Uint16(color[0:]), le.Uint16(color[2:]), dxt1)
			indices := le.Uint32(color[4:])

			for py := 0; py < 4; py++ {
				for px := 0; px < 4; px++ {
					x := bx*4 + px
					y := by*4 + py
					if x >= d.width || y >= d.height {
						continue
					}

					p := py*4 + px
					c := colors[indices>>(2*uint(p))&0x03]
					a := alpha[p]
					if dxt1 {
						// Punch-through alpha only counts when the
						// header says there is alpha
						if d.m.AlphaDepth == 0 {
							a = 0xff
						} else {
							a = c[3]
						}
					}
					set(img, x, y, c[0], c[1], c[2], a)
				}
			}
		}
	}

	return img, nil
}

// decodeARGB decodes raw pixels stored as BGRA.
func (d *decoder) decodeARGB() (*image.NRGBA, error) {
	n := d.width * d.height
	if len(d.data) < n*4 {
		return nil, fmt.Errorf("%w: ARGB data truncated (%d < %d bytes)", ErrParse, len(d.data), n*4)
	}

	img := image.NewNRGBA(image.Rect(0, 0, d.width, d.height))
	for i := 0; i < n; i++ {
		s := d.data[i*4 : i*4+4 : i*4+4]
		a := s[3]
		if d.m.AlphaDepth == 0 {
			a = 0xff
		}
		set(img, i%d.width, i/d.width, s[2], s[1], s[0], a)
	}

	return img, nil
}
