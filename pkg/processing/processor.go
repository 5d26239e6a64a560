package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/mood-detector/pkg/types"
)

// payloadSeparator splits the data-URL metadata from the base64 body.
const payloadSeparator = ","

var (
	errNoSeparator  = errors.New("payload has no ',' separator")
	errEmptyPayload = errors.New("payload has no image data")
)

// Processor handles frame decoding and image output
type Processor struct{}

// NewProcessor creates a new frame processor
func NewProcessor() *Processor {
	return &Processor{}
}

// DecodePayload decodes a "<prefix>,<base64-data>" frame payload.
// Only the text after the first comma is used.
func (p *Processor) DecodePayload(payload string) (image.Image, error) {
	i := strings.Index(payload, payloadSeparator)
	if i < 0 {
		return nil, &types.DecodeError{Cause: errNoSeparator}
	}

	data := strings.TrimSpace(payload[i+len(payloadSeparator):])
	if data == "" {
		return nil, &types.DecodeError{Cause: errEmptyPayload}
	}

	raw, err := decodeBase64(data)
	if err != nil {
		return nil, &types.DecodeError{Cause: err}
	}

	return p.DecodeBytes(raw)
}

// DecodeBytes decodes an encoded image with WebP support
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &types.DecodeError{Cause: errEmptyPayload}
	}

	// Try standard image.Decode first
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}

	// Try WebP decode
	if webpImg, webpErr := webp.Decode(bytes.NewReader(data)); webpErr == nil {
		return webpImg, nil
	}

	return nil, &types.DecodeError{Cause: fmt.Errorf("image: %w", err)}
}

// LoadImage loads a frame from a file path. Files holding a data URL are decoded as payloads.
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("data:")) {
		return p.DecodePayload(string(data))
	}

	return p.DecodeBytes(data)
}

// LoadImageFromURL downloads and decodes a frame from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mood-Detector/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return p.DecodeBytes(imageData)
}

// LoadImageSmart loads a frame from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// ToGrayscale converts a frame to a single channel grid with its origin at (0, 0).
func (p *Processor) ToGrayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	if b.Empty() {
		return &image.Gray{}
	}

	// Clone yields straight (non-premultiplied) NRGBA, so alpha never darkens the luma.
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	gray := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		line := src.Pix[y*src.Stride : y*src.Stride+cols*4]
		out := gray.Pix[y*gray.Stride : y*gray.Stride+cols]
		for x := range out {
			out[x] = luma(line[x*4], line[x*4+1], line[x*4+2])
		}
	}
	return gray
}

// luma is ITU-R 601 in 16-bit fixed point, rounded half up.
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// moodColors assigns every label a fixed overlay color.
var moodColors = map[types.Emotion]color.NRGBA{
	types.Angry:    {255, 0, 0, 255},
	types.Disgust:  {0, 160, 0, 255},
	types.Fear:     {160, 0, 255, 255},
	types.Happy:    {255, 204, 0, 255},
	types.Neutral:  {200, 200, 200, 255},
	types.Sad:      {0, 120, 255, 255},
	types.Surprise: {255, 120, 0, 255},
}

// MoodColor returns the overlay color for a label.
func MoodColor(mood types.Emotion) color.NRGBA {
	if c, ok := moodColors[mood]; ok {
		return c
	}
	return color.NRGBA{255, 255, 255, 255}
}

// CreateDebugOverlay draws every annotated face onto a copy of the frame.
func (p *Processor) CreateDebugOverlay(img image.Image, faces []types.AnnotatedFace) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side

	for _, f := range faces {
		drawBox(nrgba, f.Candidate().Rect(), MoodColor(f.Mood), stroke)
	}

	return nrgba
}

func decodeBase64(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return raw, nil
	}
	// Some encoders drop the padding.
	if raw, rawErr := base64.RawStdEncoding.DecodeString(data); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("base64: %w", err)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
