package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOpenRejectsUnknownName(t *testing.T) {
	if _, err := Open("florence", "", 8, 1); err == nil {
		t.Error("Open accepted an unknown dataset name")
	}
}

func TestSyntheticIsDeterministicPerSeed(t *testing.T) {
	a := NewSynthetic(8, 42)
	b := NewSynthetic(8, 42)

	imgA, err := a.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	imgB, _ := b.Next()
	if !reflect.DeepEqual(imgA, imgB) {
		t.Error("same seed produced different images")
	}

	c := NewSynthetic(8, 43)
	imgC, _ := c.Next()
	if reflect.DeepEqual(imgA, imgC) {
		t.Error("different seeds produced identical images")
	}
}

func TestSyntheticImageRange(t *testing.T) {
	s := NewSynthetic(8, 1)
	for i := 0; i < 5; i++ {
		img, err := s.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if len(img) != 64 {
			t.Fatalf("image has %d values, want 64", len(img))
		}
		for j, v := range img {
			if v < 0 || v > 1 {
				t.Fatalf("pixel %d = %f, outside [0,1]", j, v)
			}
		}
	}
}

func writePNG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding %s: %v", path, err)
	}
}

func TestDirCyclesThroughImagesInOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 0)
	writePNG(t, filepath.Join(dir, "b.png"), 255)

	d, err := NewDir(dir, 4)
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	for cycle := 0; cycle < 2; cycle++ {
		dark, err := d.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		bright, err := d.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if len(dark) != 16 {
			t.Fatalf("image has %d values, want 16", len(dark))
		}
		if dark[0] != 0 {
			t.Errorf("cycle %d: a.png decodes to %f, want 0", cycle, dark[0])
		}
		if bright[0] < 0.99 || bright[0] > 1.01 {
			t.Errorf("cycle %d: b.png decodes to %f, want about 1", cycle, bright[0])
		}
	}
}

func TestDirRejectsEmptyDirectory(t *testing.T) {
	if _, err := NewDir(t.TempDir(), 8); err == nil {
		t.Error("NewDir accepted a directory with no images")
	}
	if _, err := NewDir(filepath.Join(t.TempDir(), "absent"), 8); err == nil {
		t.Error("NewDir accepted a missing directory")
	}
}
