package classify

import "errors"

// errNoTFLite is returned for tflite models in builds without TensorFlow Lite.
var errNoTFLite = errors.New("tflite models require building with -tags tflite")

// LoadTFLite loads a TensorFlow Lite conversion of the emotion model, such as
// emotiondetector.tflite. Builds without the tflite tag return an error.
func LoadTFLite(path string, threads int) (Classifier, error) {
	return loadTFLite(path, threads)
}
