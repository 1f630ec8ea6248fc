// Package download writes generated images to disk. The backend returns
// fresh generations inline as data URIs and serves history images by URL;
// both forms are handled here.
package download

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxImageSize is the largest image accepted for saving (10MB). Guards
// against a corrupt or hostile payload filling the disk.
const MaxImageSize = 10 * 1024 * 1024

var (
	// ErrEmptyRef is returned when there is no image reference to save.
	ErrEmptyRef = errors.New("empty image reference")
	// ErrBadDataURI is returned when a data URI cannot be parsed.
	ErrBadDataURI = errors.New("malformed data URI")
	// ErrImageTooLarge is returned when the decoded image exceeds MaxImageSize.
	ErrImageTooLarge = errors.New("image exceeds maximum size")
	// ErrUnsupportedImageType is returned when a file extension does not map
	// to an image MIME type.
	ErrUnsupportedImageType = errors.New("unsupported image type")
)

// imageMIMEs maps file extensions to the MIME types the backend accepts for
// reference images.
var imageMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Fetcher retrieves raw image bytes for URL references. *api.Client
// satisfies it.
type Fetcher interface {
	FetchImage(ctx context.Context, ref string) ([]byte, error)
}

// Saver writes images into a fixed output directory.
type Saver struct {
	dir     string
	fetcher Fetcher
}

// NewSaver creates a saver that writes into dir, fetching URL references
// through fetcher. fetcher may be nil when only data URIs are expected.
func NewSaver(dir string, fetcher Fetcher) *Saver {
	return &Saver{dir: dir, fetcher: fetcher}
}

// Dir returns the output directory.
func (s *Saver) Dir() string {
	return s.dir
}

// Save writes the image referenced by ref to the output directory under
// filename and returns the written path. Data URIs are decoded locally;
// anything else is fetched through the Fetcher.
//
// When filename is empty a timestamped name is generated, mirroring the
// backend's own naming for generated logos.
func (s *Saver) Save(ctx context.Context, ref, filename string) (string, error) {
	if ref == "" {
		return "", ErrEmptyRef
	}

	var data []byte
	var err error
	if strings.HasPrefix(ref, "data:") {
		data, err = DecodeDataURI(ref)
	} else {
		if s.fetcher == nil {
			return "", fmt.Errorf("cannot fetch %q: no fetcher configured", ref)
		}
		data, err = s.fetcher.FetchImage(ctx, ref)
	}
	if err != nil {
		return "", err
	}
	if len(data) > MaxImageSize {
		return "", ErrImageTooLarge
	}

	if filename == "" {
		filename = fmt.Sprintf("logo_%s.png", time.Now().Format("20060102_150405"))
	}
	filename = filepath.Base(filename)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// EncodeFileDataURI reads a local image file and encodes it as a base64 data
// URI, the form the generation endpoint expects for reference conditioning.
func EncodeFileDataURI(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := imageMIMEs[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImageType, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read reference image: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", ErrImageTooLarge
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDataURI decodes the payload of a base64 data URI such as
// "data:image/png;base64,....".
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, ErrBadDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, ErrBadDataURI
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: unsupported encoding", ErrBadDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDataURI, err)
	}
	return data, nil
}
