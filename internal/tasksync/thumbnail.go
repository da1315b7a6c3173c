package tasksync

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// fetchThumbnail downloads an element preview into dir and decodes it,
// scaled so the longer edge is at most maxEdge pixels.
func (s *Synchronizer) fetchThumbnail(ctx context.Context, dir string, index int, previewID string, maxEdge int) (image.Image, error) {
	dest := filepath.Join(dir, fmt.Sprintf("thumb-%04d.png", index))
	if err := s.tracker.DownloadThumbnail(ctx, previewID, dest); err != nil {
		return nil, err
	}
	defer os.Remove(dest)

	f, err := os.Open(dest)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail %s: %w", previewID, err)
	}
	return scaleToFit(img, maxEdge), nil
}

// scaleToFit returns img unchanged when it already fits within maxEdge or when
// maxEdge is not positive.
func scaleToFit(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) || w == 0 || h == 0 {
		return img
	}
	nw, nh := maxEdge, maxEdge
	if w >= h {
		nh = max(1, h*maxEdge/w)
	} else {
		nw = max(1, w*maxEdge/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
