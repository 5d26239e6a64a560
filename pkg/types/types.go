package types

import (
	"fmt"
	"image"
)

// Emotion is one label of the closed expression set.
type Emotion string

const (
	Angry    Emotion = "angry"
	Disgust  Emotion = "disgust"
	Fear     Emotion = "fear"
	Happy    Emotion = "happy"
	Neutral  Emotion = "neutral"
	Sad      Emotion = "sad"
	Surprise Emotion = "surprise"
)

// Emotions lists the labels in classifier output order. Index positions are fixed.
var Emotions = [...]Emotion{Angry, Disgust, Fear, Happy, Neutral, Sad, Surprise}

// NumEmotions is the length of every probability vector.
const NumEmotions = len(Emotions)

// EmotionAt returns the label at index i of the classifier output.
func EmotionAt(i int) (Emotion, error) {
	if i < 0 || i >= NumEmotions {
		return "", fmt.Errorf("emotion index %d out of range", i)
	}
	return Emotions[i], nil
}

// Index returns the position of e in the label order, or -1.
func (e Emotion) Index() int {
	for i, label := range Emotions {
		if label == e {
			return i
		}
	}
	return -1
}

// FaceCandidate is a face rectangle in grayscale frame coordinates
type FaceCandidate struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the candidate as an image.Rectangle.
func (c FaceCandidate) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

// Area returns the area of the candidate
func (c FaceCandidate) Area() int {
	return c.Width * c.Height
}

// Center returns the center point of the candidate
func (c FaceCandidate) Center() (int, int) {
	return c.X + c.Width/2, c.Y + c.Height/2
}

// Within reports whether the candidate is non-empty and lies inside a frame of the given size.
func (c FaceCandidate) Within(width, height int) bool {
	return c.X >= 0 && c.Y >= 0 && c.Width > 0 && c.Height > 0 &&
		c.X+c.Width <= width && c.Y+c.Height <= height
}

// EmotionPrediction is the classifier verdict for one face.
type EmotionPrediction struct {
	Label         Emotion   `json:"label"`
	Index         int       `json:"index"`
	Probabilities []float32 `json:"probabilities"`
}

// AnnotatedFace pairs a face rectangle with its predicted mood.
type AnnotatedFace struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Mood   Emotion `json:"mood"`
}

// Candidate returns the geometry of the annotated face.
func (f AnnotatedFace) Candidate() FaceCandidate {
	return FaceCandidate{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// FrameResult is the ordered list of faces found in one frame.
type FrameResult struct {
	BoundingBoxes []AnnotatedFace `json:"bounding_boxes"`
}

// ErrorResponse is the failure envelope returned to callers.
type ErrorResponse struct {
	Error string `json:"error"`
}
