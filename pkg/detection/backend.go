package detection

import (
	"errors"
	"path/filepath"
	"strings"
)

// LoadBackend loads the cascade at path. XML cascades need a build with the gocv tag.
func LoadBackend(path string) (Backend, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return loadXMLCascade(path)
	}
	c, err := LoadPigoCascade(path)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// errNoOpenCV is returned for XML cascades in builds without OpenCV.
var errNoOpenCV = errors.New("opencv cascades require building with -tags gocv")
