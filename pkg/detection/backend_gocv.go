//go:build gocv
// +build gocv

package detection

func loadXMLCascade(path string) (Backend, error) {
	c, err := LoadOpenCVCascade(path)
	if err != nil {
		return nil, err
	}
	return c, nil
}
