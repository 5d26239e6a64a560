//go:build !gocv
// +build !gocv

package detection

func loadXMLCascade(path string) (Backend, error) {
	return nil, errNoOpenCV
}
