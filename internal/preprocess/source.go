package preprocess

import (
	"fmt"
	"image"
	"io"
)

type sourceKind int

const (
	kindNone sourceKind = iota
	kindImage
	kindBytes
	kindReader
	kindPath
)

// Source is one of the input kinds Load accepts: a decoded image, a byte
// buffer, a stream, or a filesystem path. Build it with the From helpers or
// SourceOf.
type Source struct {
	kind sourceKind
	img  image.Image
	data []byte
	r    io.Reader
	path string
}

func FromImage(img image.Image) Source { return Source{kind: kindImage, img: img} }

func FromBytes(data []byte) Source { return Source{kind: kindBytes, data: data} }

// FromReader wraps a stream. It is consumed by the first Load.
func FromReader(r io.Reader) Source { return Source{kind: kindReader, r: r} }

func FromPath(path string) Source { return Source{kind: kindPath, path: path} }

// SourceOf picks the source kind from the dynamic type of v.
func SourceOf(v any) (Source, error) {
	switch s := v.(type) {
	case Source:
		return s, nil
	case image.Image:
		return FromImage(s), nil
	case []byte:
		return FromBytes(s), nil
	case io.Reader:
		return FromReader(s), nil
	case string:
		return FromPath(s), nil
	default:
		return Source{}, fmt.Errorf("%w: %T", ErrUnsupportedSource, v)
	}
}

// Bytes returns the raw buffer for byte sources.
func (s Source) Bytes() ([]byte, bool) {
	return s.data, s.kind == kindBytes
}

func (s Source) String() string {
	switch s.kind {
	case kindImage:
		return "decoded image"
	case kindBytes:
		return fmt.Sprintf("%d-byte buffer", len(s.data))
	case kindReader:
		return "stream"
	case kindPath:
		return s.path
	default:
		return "empty source"
	}
}
