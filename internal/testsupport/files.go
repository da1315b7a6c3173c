package testsupport

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of a repeating pattern, creating parent
// directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteSequence creates count frame files named prefix.NNNN.ext starting at
// frame first, and returns their paths in frame order.
func WriteSequence(t testing.TB, dir, prefix, ext string, first, count int) []string {
	t.Helper()

	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s.%04d.%s", prefix, first+i, ext))
		WriteFile(t, path, 16)
		paths = append(paths, path)
	}
	return paths
}

// PNG encodes a solid w×h image, used as a fake thumbnail payload.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
