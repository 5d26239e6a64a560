//go:build !tflite
// +build !tflite

package classify

func loadTFLite(path string, threads int) (Classifier, error) {
	return nil, errNoTFLite
}
