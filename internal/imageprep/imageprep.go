// Package imageprep normalizes photographed receipts into the single
// encoding the analysis service accepts: a truecolor JPEG inside a byte-size
// envelope. Only the two formats cameras and scanners actually produce are
// let through; everything else is rejected up front so a bad upload fails in
// milliseconds instead of after a round-trip to the analysis service.
package imageprep

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
)

// ErrUnsupportedFormat is returned for inputs that are not decodable JPEG
// or PNG.
var ErrUnsupportedFormat = eris.New("unsupported image format")

// ErrSizeOutOfBounds is returned when the prepared image falls outside the
// configured byte-size envelope.
var ErrSizeOutOfBounds = eris.New("prepared image size out of bounds")

// Format is a sniffed image container format.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatWebP    Format = "webp"
	FormatHEIC    Format = "heic"
	FormatPDF     Format = "pdf"
	FormatUnknown Format = "unknown"
)

// Config controls preparation bounds and output quality.
type Config struct {
	// MinBytes and MaxBytes bound the prepared output size, inclusive.
	MinBytes int
	MaxBytes int

	// JPEGQuality is the canonical encoding quality (1-100).
	JPEGQuality int
}

// DefaultConfig returns the bounds used by the scan pipeline: 1 KiB to
// 10 MiB at quality 95.
func DefaultConfig() Config {
	return Config{
		MinBytes:    1024,
		MaxBytes:    10 * 1024 * 1024,
		JPEGQuality: 95,
	}
}

// Preparer converts raw uploads into canonical analysis-ready JPEG bytes.
type Preparer struct {
	cfg Config
}

// New creates a Preparer. Zero config fields fall back to defaults.
func New(cfg Config) *Preparer {
	def := DefaultConfig()
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = def.MinBytes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	return &Preparer{cfg: cfg}
}

// Prepare decodes raw image bytes and re-encodes them as a truecolor JPEG.
// Greyscale and indexed sources are flattened, transparency is composited
// onto white, and EXIF orientation is applied so the stored image matches
// what the camera saw. The prepared bytes must land inside the configured
// size envelope. No downscaling happens here; oversized photos are the
// caller's problem to shrink first.
func (p *Preparer) Prepare(raw []byte) ([]byte, error) {
	format := Sniff(raw)
	if format != FormatJPEG && format != FormatPNG {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "imageprep: detected %s", format)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "imageprep: decode %s: %v", format, err)
	}

	// Clone forces NRGBA. Without it a greyscale source would round-trip as
	// a single-channel JPEG instead of the canonical truecolor one.
	flat := imaging.Clone(img)

	// PNG may carry an alpha channel; JPEG cannot. Composite onto white so
	// transparent regions don't come out black after encoding.
	if format == FormatPNG {
		bg := imaging.New(flat.Bounds().Dx(), flat.Bounds().Dy(), color.White)
		flat = imaging.Overlay(bg, flat, image.Pt(0, 0), 1.0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return nil, eris.Wrap(err, "imageprep: encode jpeg")
	}

	prepared := buf.Bytes()
	if len(prepared) < p.cfg.MinBytes || len(prepared) > p.cfg.MaxBytes {
		return nil, eris.Wrapf(ErrSizeOutOfBounds, "imageprep: prepared %d bytes, envelope [%d, %d]",
			len(prepared), p.cfg.MinBytes, p.cfg.MaxBytes)
	}

	return prepared, nil
}

// ContentType returns the MIME type of prepared output.
func (p *Preparer) ContentType() string {
	return "image/jpeg"
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	gifMagic  = []byte("GIF8")
	bmpMagic  = []byte("BM")
	tiffLE    = []byte{0x49, 0x49, 0x2A, 0x00}
	tiffBE    = []byte{0x4D, 0x4D, 0x00, 0x2A}
	pdfMagic  = []byte("%PDF")
)

// Sniff identifies the container format from magic bytes. Extensions lie;
// bytes don't.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case bytes.HasPrefix(data, gifMagic):
		return FormatGIF
	case bytes.HasPrefix(data, tiffLE), bytes.HasPrefix(data, tiffBE):
		return FormatTIFF
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatHEIC
	case bytes.HasPrefix(data, bmpMagic):
		return FormatBMP
	default:
		return FormatUnknown
	}
}
