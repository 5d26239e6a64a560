package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/menta2k/mood-detector/pkg/types"
)

// MoodClient sends a face crop and a prompt to a vision model and returns its raw reply.
type MoodClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

// EmotionPrompt asks for one score per label as a flat JSON object.
const EmotionPrompt = `You are a facial expression classifier. The image is a grayscale crop of one human face.
Score how strongly the face shows each of these expressions: angry, disgust, fear, happy, neutral, sad, surprise.
Reply with only a JSON object mapping every expression to a number between 0 and 1, for example:
{"angry":0.05,"disgust":0.0,"fear":0.05,"happy":0.7,"neutral":0.15,"sad":0.0,"surprise":0.05}`

// ErrNoScores is returned when a reply holds neither label scores nor a single label.
var ErrNoScores = errors.New("no emotion scores in model response")

// ParseScores extracts a probability vector aligned to types.Emotions from a
// model reply. Missing labels score zero, the result sums to 1, and a reply
// that scores nothing yields the uniform distribution.
func ParseScores(raw string) ([]float32, error) {
	clean := SanitizeModelJSON(raw)
	if !gjson.Valid(clean) {
		return nil, fmt.Errorf("%w: %q", ErrNoScores, truncate(raw, 120))
	}

	doc := gjson.Parse(clean)
	for _, key := range []string{"scores", "emotions", "probabilities"} {
		if nested := doc.Get(key); nested.IsObject() {
			doc = nested
			break
		}
	}

	scores := make([]float64, types.NumEmotions)
	found := false
	doc.ForEach(func(key, value gjson.Result) bool {
		idx := types.Emotion(strings.ToLower(strings.TrimSpace(key.String()))).Index()
		if idx < 0 || value.Type != gjson.Number {
			return true
		}
		found = true
		if v := value.Float(); v > 0 && !math.IsInf(v, 0) {
			scores[idx] = v
		}
		return true
	})

	if !found {
		// Some models answer with a single label instead of scores.
		for _, key := range []string{"mood", "emotion", "label"} {
			label := types.Emotion(strings.ToLower(doc.Get(key).String()))
			if idx := label.Index(); idx >= 0 {
				scores[idx] = 1
				found = true
				break
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNoScores, truncate(raw, 120))
	}

	return normalize(scores), nil
}

func normalize(scores []float64) []float32 {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	out := make([]float32, len(scores))
	for i, s := range scores {
		if sum == 0 {
			out[i] = float32(1 / float64(len(scores)))
			continue
		}
		out[i] = float32(s / sum)
	}
	return out
}

var reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = stripComments(raw)
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// stripComments drops // and /* */ comments that sit outside string literals.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
