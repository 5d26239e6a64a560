package detection

import (
	"fmt"
	"image"
	"math"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"
)

// scanner is the part of *pigo.Pigo used for detection.
type scanner interface {
	RunCascade(cp pigo.CascadeParams, angle float64) []pigo.Detection
}

// PigoCascade is a pure Go cascade backend.
type PigoCascade struct {
	classifier scanner
}

// NewPigoCascade unpacks a pigo cascade file.
func NewPigoCascade(cascade []byte) (*PigoCascade, error) {
	p := pigo.NewPigo()
	// Unpack the binary file. This will return the number of cascade trees,
	// the tree depth, the threshold and the prediction from tree's leaf nodes.
	classifier, err := p.Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	return &PigoCascade{classifier: classifier}, nil
}

// LoadPigoCascade reads and unpacks a cascade file from disk.
func LoadPigoCascade(path string) (*PigoCascade, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the cascade file: %w", err)
	}
	c, err := NewPigoCascade(cascade)
	if err != nil {
		return nil, err
	}
	log.Infof("detection: loaded cascade %s", path)
	return c, nil
}

// Detect scans the frame and groups overlapping window hits into faces.
func (c *PigoCascade) Detect(frame *image.Gray, cfg Config) ([]image.Rectangle, error) {
	cols, rows := frame.Bounds().Dx(), frame.Bounds().Dy()

	maxSize := cfg.MaxSize
	if side := minInt(cols, rows); side < maxSize {
		maxSize = side
	}
	if maxSize < cfg.MinSize {
		return nil, nil
	}

	cParams := pigo.CascadeParams{
		MinSize:     cfg.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: cfg.ShiftFactor,
		ScaleFactor: cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: frame.Pix,
			Rows:   rows,
			Cols:   cols,
			Dim:    frame.Stride,
		},
	}

	// Rotation angle 0: frontal, upright faces only.
	hits := c.classifier.RunCascade(cParams, 0.0)
	dets := groupDetections(hits, cfg.MinNeighbors, cfg.IoUThreshold, cfg.MinQuality)

	log.Debugf("detection: %d raw hits grouped into %d faces", len(hits), len(dets))

	rects := make([]image.Rectangle, 0, len(dets))
	for _, d := range dets {
		rects = append(rects, detectionRect(d))
	}
	return rects, nil
}

// groupDetections merges overlapping hits. Hits are visited by descending score;
// each unassigned hit seeds a group with every unassigned hit overlapping it.
// A group is kept when it has at least minNeighbors members besides its seed.
// With minNeighbors 0 the hits are returned ungrouped.
func groupDetections(hits []pigo.Detection, minNeighbors int, iouThreshold float64, minQuality float32) []pigo.Detection {
	filtered := make([]pigo.Detection, 0, len(hits))
	for _, h := range hits {
		if h.Scale > 0 && h.Q >= minQuality {
			filtered = append(filtered, h)
		}
	}
	if minNeighbors <= 0 {
		return filtered
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Q > filtered[j].Q
	})

	assigned := make([]bool, len(filtered))
	var groups []pigo.Detection

	for i := range filtered {
		if assigned[i] {
			continue
		}
		var r, c, s, n int
		var q float32
		for j := i; j < len(filtered); j++ {
			if assigned[j] || iou(filtered[i], filtered[j]) <= iouThreshold {
				continue
			}
			assigned[j] = true
			r += filtered[j].Row
			c += filtered[j].Col
			s += filtered[j].Scale
			q += filtered[j].Q
			n++
		}
		if n-1 < minNeighbors {
			continue
		}
		groups = append(groups, pigo.Detection{Row: r / n, Col: c / n, Scale: s / n, Q: q})
	}

	return groups
}

// iou returns the intersection over union of two square detections.
func iou(a, b pigo.Detection) float64 {
	ra, rb := detectionRect(a), detectionRect(b)
	inter := ra.Intersect(rb)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(ra.Dx()*ra.Dy()+rb.Dx()*rb.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// detectionRect converts a (row, col, scale) detection centre into a rectangle.
func detectionRect(d pigo.Detection) image.Rectangle {
	half := int(math.Round(float64(d.Scale) / 2))
	x, y := d.Col-half, d.Row-half
	return image.Rect(x, y, x+d.Scale, y+d.Scale)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
