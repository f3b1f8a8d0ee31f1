package blp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

const (
	markerPrefix = 0xff
	markerSOI    = 0xd8
	markerSOS    = 0xda
)

// jpegBody splits a mip's data into the JPEG continuation and the trailing
// alpha plane.
func (d *decoder) jpegBody() ([]byte, []byte, error) {
	var n int
	if d.m.AlphaDepth != 0 {
		n = d.width * d.height
	}
	if len(d.data) < n {
		return nil, nil, fmt.Errorf("%w: alpha plane truncated (%d < %d bytes)", ErrParse, len(d.data), n)
	}
	split := len(d.data) - n
	return d.data[:split], d.data[split:], nil
}

func (d *decoder) decodeJPEG() (*image.NRGBA, error) {
	body, plane, err := d.jpegBody()
	if err != nil {
		return nil, err
	}

	stream := make([]byte, 0, len(d.m.JPEGHeader)+len(body))
	stream = append(append(stream, d.m.JPEGHeader...), body...)

	// Check the frame size before allocating anything for it
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if cfg.Width != d.width || cfg.Height != d.height {
		return nil, fmt.Errorf("%w: JPEG is %dx%d, expected %dx%d", ErrParse, cfg.Width, cfg.Height, d.width, d.height)
	}

	m, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	b := m.Bounds()

	img := image.NewNRGBA(image.Rect(0, 0, d.width, d.height))
	draw.Draw(img, img.Bounds(), m, b.Min, draw.Src)

	if len(plane) > 0 {
		for i, a := range plane {
			img.Pix[i*4+3] = a
		}
	}

	return img, nil
}

// scanStart returns the offset of the first entropy coded byte, just past
// the SOS segment.
func scanStart(b []byte) (int, error) {
	if len(b) < 2 || b[0] != markerPrefix || b[1] != markerSOI {
		return 0, fmt.Errorf("%w: missing SOI marker", ErrEncode)
	}
	o := 2
	for o+4 <= len(b) {
		if b[o] != markerPrefix {
			return 0, fmt.Errorf("%w: bad JPEG marker at %d", ErrEncode, o)
		}
		marker := b[o+1]
		end := o + 2 + int(binary.BigEndian.Uint16(b[o+2:]))
		if marker == markerSOS {
			if end > len(b) {
				break
			}
			return end, nil
		}
		o = end
	}
	return 0, fmt.Errorf("%w: missing SOS marker", ErrEncode)
}

// sharedHeader returns the length of the header shared by all streams: the
// longest common prefix, no longer than the first stream's headers.
func sharedHeader(streams [][]byte) (int, error) {
	n, err := scanStart(streams[0])
	if err != nil {
		return 0, err
	}
	for _, s := range streams[1:] {
		i := 0
		for i < n && i < len(s) && s[i] == streams[0][i] {
			i++
		}
		n = i
	}
	return n, nil
}

// opaque returns a copy of m with every pixel fully opaque so the color
// channels are encoded without premultiplication.
func opaque(m *image.NRGBA) *image.RGBA {
	dst := image.NewRGBA(m.Bounds())
	for i := 0; i < len(m.Pix); i += 4 {
		copy(dst.Pix[i:i+3], m.Pix[i:i+3])
		dst.Pix[i+3] = 0xff
	}
	return dst
}

// encodeJPEG compresses each mip and splits the streams into one shared
// header and per-mip bodies.
func (e *encoder) encodeJPEG() error {
	var streams [][]byte
	for _, l := range e.levels {
		b := new(bytes.Buffer)
		if err := jpeg.Encode(b, opaque(l.image), &jpeg.Options{Quality: e.jpegQuality()}); err != nil {
			return fmt.Errorf("%w: %v", ErrEncode, err)
		}
		streams = append(streams, b.Bytes())
	}

	n, err := sharedHeader(streams)
	if err != nil {
		return err
	}
	e.jpegHeader = streams[0][:n]

	for i, l := range e.levels {
		body := streams[i][n:]
		if e.header.AlphaDepth != 0 {
			plane := make([]byte, 0, len(l.image.Pix)/4)
			for j := 3; j < len(l.image.Pix); j += 4 {
				plane = append(plane, l.image.Pix[j])
			}
			body = append(body, plane...)
		}
		e.levels[i].data = body
	}

	return nil
}

func (e *encoder) jpegQuality() int {
	if e.quality < 1 {
		return 1
	}
	return e.quality
}
