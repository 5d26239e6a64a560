//go:build tflite
// +build tflite

package classify

func loadTFLite(path string, threads int) (Classifier, error) {
	t, err := NewTFLite(path, threads)
	if err != nil {
		return nil, err
	}
	return t, nil
}
