// Package dataset supplies the real images consumed for conditioning and
// discriminator training.
package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/atelier-rl/paintpool/core"
)

// Open resolves a dataset name to a Source. Unknown names are a
// configuration error, surfaced before any thread starts.
func Open(name, path string, gridWidth int, seed int64) (core.Source, error) {
	switch name {
	case "synthetic":
		return NewSynthetic(gridWidth, seed), nil
	case "dir":
		return NewDir(path, gridWidth)
	default:
		return nil, fmt.Errorf("unsupported dataset %q", name)
	}
}

// Synthetic generates grayscale images of randomly placed gaussian blobs.
// Deterministic for a given seed.
type Synthetic struct {
	gridWidth int
	rng       *rand.Rand
}

func NewSynthetic(gridWidth int, seed int64) *Synthetic {
	return &Synthetic{
		gridWidth: gridWidth,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (s *Synthetic) Next() ([]float64, error) {
	w := s.gridWidth
	img := make([]float64, w*w)
	blobs := 1 + s.rng.Intn(3)
	for i := 0; i < blobs; i++ {
		cx := s.rng.Float64() * float64(w)
		cy := s.rng.Float64() * float64(w)
		sigma := 1 + s.rng.Float64()*float64(w)/8
		for r := 0; r < w; r++ {
			for c := 0; c < w; c++ {
				d2 := (float64(r)-cy)*(float64(r)-cy) + (float64(c)-cx)*(float64(c)-cx)
				img[r*w+c] += math.Exp(-d2 / (2 * sigma * sigma))
			}
		}
	}
	for i, v := range img {
		if v > 1 {
			img[i] = 1
		} else {
			img[i] = v
		}
	}
	return img, nil
}

// Dir cycles through the images of a directory, decoded to grayscale and
// scaled to the grid size.
type Dir struct {
	paths     []string
	gridWidth int
	next      int
}

func NewDir(path string, gridWidth int) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset dir: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("dataset dir %s holds no images", path)
	}
	return &Dir{paths: paths, gridWidth: gridWidth}, nil
}

func (d *Dir) Next() ([]float64, error) {
	p := d.paths[d.next]
	d.next = (d.next + 1) % len(d.paths)

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p, err)
	}
	return grayscale(img, d.gridWidth), nil
}

// grayscale resamples an image to a gridWidth square of [0,1] intensities.
func grayscale(img image.Image, gridWidth int) []float64 {
	bounds := img.Bounds()
	out := make([]float64, gridWidth*gridWidth)
	for r := 0; r < gridWidth; r++ {
		for c := 0; c < gridWidth; c++ {
			x := bounds.Min.X + c*bounds.Dx()/gridWidth
			y := bounds.Min.Y + r*bounds.Dy()/gridWidth
			red, green, blue, _ := img.At(x, y).RGBA()
			out[r*gridWidth+c] = (0.299*float64(red) + 0.587*float64(green) + 0.114*float64(blue)) / 65535
		}
	}
	return out
}
