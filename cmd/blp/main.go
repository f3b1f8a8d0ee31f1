package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/blp"
	"github.com/bodgit/blp/batch"
	"github.com/bodgit/blp/catalog"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultDB = "blp.db"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) (*log.Logger, func()) {
	logger := log.New(io.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}

	file := c.String("log-file")
	if file == "" {
		return logger, func() {}
	}

	lj := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	if c.Bool("verbose") {
		logger.SetOutput(io.MultiWriter(os.Stderr, lj))
	} else {
		logger.SetOutput(lj)
	}
	logger.SetFlags(log.LstdFlags)

	return logger, func() { lj.Close() }
}

func encodeFlags(mips int) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "quality",
			EnvVars: []string{"BLP_QUALITY"},
			Value:   blp.DefaultQuality,
			Usage:   "JPEG quality or palette color budget, 0-100",
		},
		&cli.IntFlag{
			Name:  "mips",
			Value: mips,
			Usage: "generate the first `N` mip levels",
		},
		&cli.StringFlag{
			Name:  "flags",
			Usage: "per level visibility such as 1,0,1 (overrides --mips)",
		},
		&cli.StringFlag{
			Name:  "compression",
			Value: "jpeg",
			Usage: "jpeg or palette",
		},
		&cli.IntFlag{
			Name:  "blp-version",
			Value: 1,
			Usage: "write BLP1 or BLP2",
		},
		&cli.UintFlag{
			Name:  "alpha-depth",
			Usage: "alpha bits per pixel, 0 chooses automatically",
		},
	}
}

func encodeOptions(c *cli.Context) (blp.Visibility, *blp.Options, error) {
	var visible blp.Visibility
	var err error
	if c.IsSet("flags") {
		visible, err = blp.ParseVisibility(c.String("flags"))
	} else {
		visible, err = blp.VisibleCount(c.Int("mips"))
	}
	if err != nil {
		return visible, nil, err
	}

	o := &blp.Options{
		Quality:    c.Int("quality"),
		AlphaDepth: uint8(c.Uint("alpha-depth")),
	}

	switch strings.ToLower(c.String("compression")) {
	case "jpeg", "jpg":
		o.Compression = blp.CompressionJPEG
	case "palette":
		o.Compression = blp.CompressionPalette
	default:
		return visible, nil, fmt.Errorf("%w: unknown compression %q", blp.ErrInvalidInput, c.String("compression"))
	}

	switch c.Int("blp-version") {
	case 1:
		o.Format = blp.FormatBLP1
	case 2:
		o.Format = blp.FormatBLP2
	default:
		return visible, nil, fmt.Errorf("%w: unknown BLP version %d", blp.ErrInvalidInput, c.Int("blp-version"))
	}

	return visible, o, nil
}

func parseFile(file string) (*blp.Image, []byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, err
	}
	m, err := blp.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return m, data, nil
}

func info(w io.Writer, m *blp.Image) {
	fmt.Fprintf(w, "Format:      %s\n", m.Format)
	fmt.Fprintf(w, "Compression: %s\n", m.Compression)
	if m.Format == blp.FormatBLP2 && m.Compression == blp.CompressionPalette {
		fmt.Fprintf(w, "Encoding:    %s\n", m.Encoding)
	}
	fmt.Fprintf(w, "Alpha depth: %d\n", m.AlphaDepth)
	fmt.Fprintf(w, "Size:        %dx%d\n", m.Width, m.Height)
	fmt.Fprintf(w, "Mip levels:  %d\n", m.MipCount())
	for i, e := range m.Mips {
		if !e.Present() {
			continue
		}
		b := m.MipBounds(i)
		fmt.Fprintf(w, "  %2d: %5dx%-5d offset %d length %d\n", i, b.Dx(), b.Dy(), e.Offset, e.Length)
	}
}

func main() {
	app := cli.NewApp()

	app.Name = "blp"
	app.Usage = "BLP texture conversion utility"
	app.Version = blp.LibraryVersion

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"BLP_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to texture catalog",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
		&cli.StringFlag{
			Name:    "log-file",
			EnvVars: []string{"BLP_LOG_FILE"},
			Usage:   "also log to a rotated `FILE`",
		},
		&cli.IntFlag{
			Name:    "workers",
			EnvVars: []string{"BLP_WORKERS"},
			Usage:   "number of files converted concurrently",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "info",
			Usage:     "Show the header and mip table of a BLP file",
			ArgsUsage: "FILE",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				m, _, err := parseFile(c.Args().First())
				if err != nil {
					return cli.Exit(err, 1)
				}
				info(c.App.Writer, m)

				return nil
			},
		},
		{
			Name:      "decode",
			Usage:     "Decode one mip level of a BLP file to PNG",
			ArgsUsage: "FILE OUTPUT",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "mip",
					Usage: "mip level to decode",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				m, data, err := parseFile(c.Args().Get(0))
				if err != nil {
					return cli.Exit(err, 1)
				}

				visible, err := blp.VisibleOnly(c.Int("mip"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				if err := m.Decode(data, visible); err != nil {
					return cli.Exit(err, 1)
				}

				b := new(bytes.Buffer)
				if err := m.ExportPNG(b, c.Int("mip")); err != nil {
					return cli.Exit(err, 1)
				}
				if err := os.WriteFile(c.Args().Get(1), b.Bytes(), 0o644); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:      "extract",
			Usage:     "Extract one mip level of a JPEG compressed BLP file without recompressing",
			ArgsUsage: "FILE OUTPUT",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "mip",
					Usage: "mip level to extract",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				m, data, err := parseFile(c.Args().Get(0))
				if err != nil {
					return cli.Exit(err, 1)
				}

				b := new(bytes.Buffer)
				if err := m.ExportJPEG(b, c.Int("mip"), data); err != nil {
					return cli.Exit(err, 1)
				}
				if err := os.WriteFile(c.Args().Get(1), b.Bytes(), 0o644); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:      "encode",
			Usage:     "Encode a PNG, JPEG, GIF, BMP, TIFF or WebP image as BLP",
			ArgsUsage: "FILE OUTPUT",
			Flags:     encodeFlags(1),
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				visible, o, err := encodeOptions(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				src, err := os.ReadFile(c.Args().Get(0))
				if err != nil {
					return cli.Exit(err, 1)
				}

				b := new(bytes.Buffer)
				if err := blp.EncodeSource(b, src, visible, o); err != nil {
					return cli.Exit(err, 1)
				}
				if err := os.WriteFile(c.Args().Get(1), b.Bytes(), 0o644); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:      "decode-dir",
			Usage:     "Decode every BLP file under a directory to PNG",
			ArgsUsage: "DIRECTORY OUTPUT",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "mip",
					Usage: "mip level to decode",
				},
				&cli.BoolFlag{
					Name:  "extract-jpeg",
					Usage: "also extract the raw JPEG of JPEG compressed files",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				logger, closer := newLogger(c)
				defer closer()

				s, err := batch.New(nil, logger, c.Int("workers")).DecodeDir(c.Args().Get(0), c.Args().Get(1), c.Int("mip"), c.Bool("extract-jpeg"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprintf(c.App.Writer, "Decoded %d files, %d failed\n", s.Converted, s.Failed)

				return nil
			},
		},
		{
			Name:      "encode-dir",
			Usage:     "Encode every image under a directory as BLP",
			ArgsUsage: "DIRECTORY OUTPUT",
			Flags:     encodeFlags(8),
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				visible, o, err := encodeOptions(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				logger, closer := newLogger(c)
				defer closer()

				s, err := batch.New(nil, logger, c.Int("workers")).EncodeDir(c.Args().Get(0), c.Args().Get(1), visible, o)
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprintf(c.App.Writer, "Encoded %d files, %d failed\n", s.Converted, s.Failed)

				return nil
			},
		},
		{
			Name:      "scan",
			Usage:     "Index every BLP file under a directory into the catalog",
			ArgsUsage: "DIRECTORY",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				logger, closer := newLogger(c)
				defer closer()

				db, err := catalog.Open(c.String("db"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer db.Close()

				id, s, err := batch.New(db, logger, c.Int("workers")).Scan(c.Args().First())
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprintf(c.App.Writer, "Scan %s indexed %d files, %d failed\n", id, s.Converted, s.Failed)

				return nil
			},
		},
		{
			Name:      "restore",
			Usage:     "Write a catalogued texture back out by hash",
			ArgsUsage: "HASH OUTPUT",
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				db, err := catalog.Open(c.String("db"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer db.Close()

				b, err := db.Load(c.Args().Get(0))
				if err != nil {
					return cli.Exit(err, 1)
				}
				if b == nil {
					return cli.Exit(fmt.Sprintf("no texture with hash %s", c.Args().Get(0)), 1)
				}
				if err := os.WriteFile(c.Args().Get(1), b, 0o644); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:  "version",
			Usage: "Print the library version",
			Action: func(c *cli.Context) error {
				fmt.Fprintln(c.App.Writer, blp.LibraryVersion)
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
