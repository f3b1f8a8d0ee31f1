package blp

import (
	"fmt"
	"image/png"
	"io"
)

func checkIndex(i int) error {
	if i < 0 || i >= MaxMips {
		return fmt.Errorf("%w: mip index %d outside 0-%d", ErrInvalidInput, i, MaxMips-1)
	}
	return nil
}

// ExportPNG writes decoded mip level i to w as a PNG.
func (m *Image) ExportPNG(w io.Writer, i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	img, ok := m.Mip(i)
	if !ok {
		return fmt.Errorf("%w: mip %d is %s", ErrExport, i, m.Status(i))
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	return nil
}

// ExportJPEG writes mip level i of a JPEG compressed image to w as a
// standalone JPEG without recompressing it. src must be the buffer the image
// was parsed from. Any alpha plane is dropped.
func (m *Image) ExportJPEG(w io.Writer, i int, src []byte) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if m.Compression != CompressionJPEG {
		return fmt.Errorf("%w: %w: image uses %s compression", ErrExport, ErrParse, m.Compression)
	}
	e := m.Mips[i]
	if !e.Present() {
		return fmt.Errorf("%w: %w: mip %d is absent", ErrExport, ErrParse, i)
	}
	if uint64(e.Offset)+uint64(e.Length) > uint64(len(src)) {
		return fmt.Errorf("%w: %w: mip %d is outside the buffer", ErrExport, ErrParse, i)
	}

	width, height := mipSize(m.Width, m.Height, i)
	d := decoder{
		m:     m,
		data:  src[e.Offset : e.Offset+e.Length],
		width: width, height: height,
	}
	body, _, err := d.jpegBody()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}

	if _, err := w.Write(m.JPEGHeader); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
