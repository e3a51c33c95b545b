// Package preprocess turns image inputs into fixed-shape model tensors and
// validates uploads.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/Brownie44l1/atk-classifier/internal/tensor"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultWidth  = 300
	DefaultHeight = 300
	DefaultFilter = "lanczos3"
)

var filters = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// Decoded is a loaded image and the name of the decoder that produced it.
type Decoded struct {
	Image  image.Image
	Format string
}

// Preprocessor resizes and normalizes images for the classifier. Its settings
// are fixed at construction.
type Preprocessor struct {
	width     int
	height    int
	normalize bool
	filter    resize.InterpolationFunction
}

type Option func(*Preprocessor) error

func WithTargetSize(width, height int) Option {
	return func(p *Preprocessor) error {
		if width <= 0 || height <= 0 {
			return fmt.Errorf("invalid target size %dx%d", width, height)
		}
		p.width, p.height = width, height
		return nil
	}
}

// WithNormalize controls whether pixel values are scaled to [0, 1]. Disable
// it for models that rescale internally.
func WithNormalize(normalize bool) Option {
	return func(p *Preprocessor) error {
		p.normalize = normalize
		return nil
	}
}

// WithFilter selects the resampling kernel by name.
func WithFilter(name string) Option {
	return func(p *Preprocessor) error {
		f, ok := filters[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown resampling filter %q", name)
		}
		p.filter = f
		return nil
	}
}

func New(opts ...Option) (*Preprocessor, error) {
	p := &Preprocessor{
		width:     DefaultWidth,
		height:    DefaultHeight,
		normalize: true,
		filter:    resize.Lanczos3,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Preprocessor) TargetSize() (width, height int) { return p.width, p.height }

func (p *Preprocessor) Normalizes() bool { return p.normalize }

// Load decodes src. Decode failures, empty buffers and zero-sized images are
// reported as *LoadError.
func (p *Preprocessor) Load(src Source) (Decoded, error) {
	var data []byte
	switch src.kind {
	case kindImage:
		if src.img == nil || src.img.Bounds().Empty() {
			return Decoded{}, &LoadError{Source: src.String(), Err: ErrEmptyImage}
		}
		return Decoded{Image: src.img}, nil
	case kindBytes:
		data = src.data
	case kindReader:
		if src.r == nil {
			return Decoded{}, &LoadError{Source: src.String(), Err: ErrUnsupportedSource}
		}
		b, err := io.ReadAll(src.r)
		if err != nil {
			return Decoded{}, &LoadError{Source: src.String(), Err: err}
		}
		data = b
	case kindPath:
		b, err := os.ReadFile(src.path)
		if err != nil {
			return Decoded{}, &LoadError{Source: src.String(), Err: err}
		}
		data = b
	default:
		return Decoded{}, &LoadError{Source: src.String(), Err: ErrUnsupportedSource}
	}

	if len(data) == 0 {
		return Decoded{}, &LoadError{Source: src.String(), Err: ErrEmptyImage}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, &LoadError{Source: src.String(), Err: err}
	}
	if img.Bounds().Empty() {
		return Decoded{}, &LoadError{Source: src.String(), Err: ErrEmptyImage}
	}
	return Decoded{Image: img, Format: format}, nil
}

// Resize stretches img to exactly the target size. Aspect ratio is not kept.
func (p *Preprocessor) Resize(img image.Image) image.Image {
	return resize.Resize(uint(p.width), uint(p.height), img, p.filter)
}

// Canonicalize converts img to an opaque 8-bit RGB layout at the origin.
// Grayscale is replicated, palettes are expanded and alpha is dropped rather
// than composited, so translucent pixels keep their straight colour.
func (p *Preprocessor) Canonicalize(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// ToTensor copies the RGB channels of img into a [1, H, W, 3] tensor.
func (p *Preprocessor) ToTensor(img *image.NRGBA) tensor.Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.New(h, w)

	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := t.Index(y, x, 0)
			for c := 0; c < tensor.Channels; c++ {
				v := float32(px[c])
				if p.normalize {
					v /= 255.0
				}
				t.Data[i+c] = v
			}
		}
	}
	return t
}

// Preprocess runs Load, Resize, Canonicalize and ToTensor.
func (p *Preprocessor) Preprocess(src Source) (tensor.Tensor, error) {
	decoded, err := p.Load(src)
	if err != nil {
		return tensor.Tensor{}, err
	}
	resized := p.Resize(decoded.Image)
	return p.ToTensor(p.Canonicalize(resized)), nil
}
