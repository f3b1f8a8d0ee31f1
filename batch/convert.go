package batch

import (
	"bytes"
	"fmt"
	"os"

	"github.com/bodgit/blp"
)

var sourceExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// DecodeDir decodes mip level mip of every BLP file under in to a PNG file
// at the same relative path under out. If extractJPEG is set the raw JPEG
// stream of that level is also written alongside for JPEG compressed files.
// Files that fail are logged and counted but do not stop the run.
func (c *Converter) DecodeDir(in, out string, mip int, extractJPEG bool) (Summary, error) {
	visible, err := blp.VisibleOnly(mip)
	if err != nil {
		return Summary{}, err
	}

	return c.run(in, []string{".blp"}, func(file, rel string) error {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}

		m, err := blp.Parse(data)
		if err != nil {
			return err
		}
		if err := m.Decode(data, visible); err != nil {
			return err
		}

		b := new(bytes.Buffer)
		if err := m.ExportPNG(b, mip); err != nil {
			return err
		}

		target, err := outputPath(out, rel, ".png")
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, b.Bytes(), 0o644); err != nil {
			return err
		}
		c.logger.Printf("Saved \"%s\"\n", target)

		if !extractJPEG || m.Compression != blp.CompressionJPEG {
			return nil
		}

		b.Reset()
		if err := m.ExportJPEG(b, mip, data); err != nil {
			c.logger.Printf("No JPEG for \"%s\": %v\n", file, err)
			return nil
		}

		if target, err = outputPath(out, rel, ".jpg"); err != nil {
			return err
		}
		if err := os.WriteFile(target, b.Bytes(), 0o644); err != nil {
			return err
		}
		c.logger.Printf("Saved \"%s\"\n", target)

		return nil
	})
}

// EncodeDir encodes every image file under in to a BLP file at
// the same relative path under out, generating the mip levels selected by
// visible. Files that fail are logged and counted but do not stop the run.
func (c *Converter) EncodeDir(in, out string, visible blp.Visibility, o *blp.Options) (Summary, error) {
	if !visible.Any() {
		return Summary{}, fmt.Errorf("%w: no mip levels selected", blp.ErrInvalidInput)
	}

	return c.run(in, sourceExts, func(file, rel string) error {
		src, err := os.ReadFile(file)
		if err != nil {
			return err
		}

		b := new(bytes.Buffer)
		if err := blp.EncodeSource(b, src, visible, o); err != nil {
			return err
		}

		target, err := outputPath(out, rel, ".blp")
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, b.Bytes(), 0o644); err != nil {
			return err
		}
		c.logger.Printf("Saved \"%s\"\n", target)

		return nil
	})
}

// Scan records every BLP file under dir in the catalog as a new scan run,
// returning the run identifier. Files that cannot be parsed are logged and
// counted as failures, catalog errors stop the run.
func (c *Converter) Scan(dir string) (string, Summary, error) {
	if c.catalog == nil {
		return "", Summary{}, fmt.Errorf("%w: no catalog", blp.ErrInvalidInput)
	}

	scan, err := c.catalog.BeginScan(dir)
	if err != nil {
		return "", Summary{}, err
	}

	s, err := c.run(dir, []string{".blp"}, func(file, rel string) error {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}

		m, err := blp.Parse(data)
		if err != nil {
			return err
		}

		hash, err := c.catalog.Add(scan, rel, data, &m.Header)
		if err != nil {
			return &fatalError{err}
		}
		c.logger.Printf("Indexed \"%s\" as %s\n", file, hash)

		return nil
	})

	return scan, s, err
}
