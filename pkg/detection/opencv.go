//go:build gocv
// +build gocv

package detection

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// OpenCVCascade runs an OpenCV Haar cascade such as haarcascade_frontalface_default.xml.
type OpenCVCascade struct {
	classifier gocv.CascadeClassifier
	mutex      sync.Mutex
}

// LoadOpenCVCascade loads a Haar cascade XML file.
func LoadOpenCVCascade(path string) (*OpenCVCascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("error reading the cascade file %s", path)
	}
	log.Infof("detection: loaded opencv cascade %s", path)
	return &OpenCVCascade{classifier: classifier}, nil
}

// Detect runs multi-scale detection; OpenCV groups hits by min neighbors itself.
func (c *OpenCVCascade) Detect(frame *image.Gray, cfg Config) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(frame)
	if err != nil {
		return nil, fmt.Errorf("gray to mat: %w", err)
	}
	defer mat.Close()

	// The native classifier keeps scratch buffers between calls.
	c.mutex.Lock()
	defer c.mutex.Unlock()

	rects := c.classifier.DetectMultiScaleWithParams(
		mat,
		cfg.ScaleFactor,
		cfg.MinNeighbors,
		0,
		image.Pt(cfg.MinSize, cfg.MinSize),
		image.Pt(cfg.MaxSize, cfg.MaxSize),
	)
	return rects, nil
}

// Close releases the native classifier.
func (c *OpenCVCascade) Close() error {
	return c.classifier.Close()
}
