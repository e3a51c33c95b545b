package preprocess

import (
	"fmt"
	"image"
	"strings"
)

// ColorMode is the channel layout of a decoded image.
type ColorMode int

const (
	ModeOther ColorMode = iota
	ModeGrayscale
	ModeRGB
	ModeRGBA
)

func (m ColorMode) String() string {
	switch m {
	case ModeGrayscale:
		return "L"
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	default:
		return "other"
	}
}

func (m ColorMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

const unknownFormat = "unknown"

// ImageInfo describes a decoded image for display.
type ImageInfo struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Mode   ColorMode `json:"mode"`
	Format string    `json:"format"`
}

// Validator checks uploads and extracts image metadata. The zero value is
// ready to use.
type Validator struct{}

// ValidateExtension reports whether filename ends in one of the allowed
// extensions, ignoring case. Allowed entries may carry a leading dot.
func (Validator) ValidateExtension(filename string, allowed []string) bool {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return false
	}
	ext := strings.ToLower(filename[i+1:])
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}

// ValidateFileSize reports whether size is within max. Equality is valid.
func (Validator) ValidateFileSize(size, max int64) bool {
	return size <= max
}

// ValidateUpload combines the extension and size checks and returns a
// user-facing *UploadError for the first one that fails.
func (v Validator) ValidateUpload(filename string, size int64, allowed []string, max int64) error {
	if !v.ValidateExtension(filename, allowed) {
		return &UploadError{Filename: filename, Msg: fmt.Sprintf("invalid file type. allowed: %s", strings.Join(allowed, ", "))}
	}
	if !v.ValidateFileSize(size, max) {
		maxMB := float64(max) / (1024 * 1024)
		return &UploadError{Filename: filename, Msg: fmt.Sprintf("file too large. maximum size: %.1fMB", maxMB)}
	}
	return nil
}

// ImageInfo reads the dimensions and colour mode of img. format is the
// decoder name; empty means unknown.
func (Validator) ImageInfo(img image.Image, format string) ImageInfo {
	b := img.Bounds()
	if format == "" {
		format = unknownFormat
	}
	return ImageInfo{
		Width:  b.Dx(),
		Height: b.Dy(),
		Mode:   colorMode(img),
		Format: strings.ToUpper(format),
	}
}

func colorMode(img image.Image) ColorMode {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return ModeGrayscale
	case *image.YCbCr:
		return ModeRGB
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.NYCbCrA:
		// The png decoder hands back RGBA for plain RGB files too.
		if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	default:
		return ModeOther
	}
}
