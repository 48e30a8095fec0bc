package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/samber/lo"
)

const ThumbnailContentType = "image/jpeg"

type previewWidth struct {
	name  string
	width int
}

// Preview sizes by name, as a maximum width in pixels.
var previewWidths = []previewWidth{
	{"small", 150},
	{"medium", 400},
	{"large", 800},
}

// PreviewSizes lists the preview names ProcessImage renders, smallest first.
func PreviewSizes() []string {
	return lo.Map(previewWidths, func(p previewWidth, _ int) string { return p.name })
}

type Thumbnails struct {
	Small, Medium, Large string
	Width, Height        int
}

// ImageProcessor renders JPEG previews of a stored image next to it in the
// same backend.
type ImageProcessor struct {
	backend storage.Backend
}

func NewImageProcessor(backend storage.Backend) *ImageProcessor {
	return &ImageProcessor{backend: backend}
}

func ThumbnailName(objectID, size string) string {
	return fmt.Sprintf("%s-thumb-%s.jpg", objectID, size)
}

func (ip *ImageProcessor) ProcessImage(ctx context.Context, objectID string) (*Thumbnails, error) {
	rc, err := ip.backend.Get(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	out := &Thumbnails{Width: bounds.Dx(), Height: bounds.Dy()}
	for _, p := range previewWidths {
		name, err := ip.saveThumbnail(ctx, objectID, img, p.width, p.name)
		if err != nil {
			return nil, err
		}
		switch p.name {
		case "small":
			out.Small = name
		case "medium":
			out.Medium = name
		case "large":
			out.Large = name
		}
	}
	return out, nil
}

func (ip *ImageProcessor) saveThumbnail(ctx context.Context, objectID string, img image.Image, maxWidth int, size string) (string, error) {
	// Never upscale
	thumb := img
	if img.Bounds().Dx() > maxWidth {
		thumb = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode %s thumbnail: %w", size, err)
	}

	name := ThumbnailName(objectID, size)
	if _, err := ip.backend.Put(ctx, name, &buf, int64(buf.Len()), ThumbnailContentType); err != nil {
		return "", fmt.Errorf("store %s thumbnail: %w", size, err)
	}
	return name, nil
}
