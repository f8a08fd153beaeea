// Package sizedetect derives character/token/page/word/line counts and a
// size category from document text. It is a pure function with no I/O,
// deliberately approximating token count rather than invoking a tokenizer.
package sizedetect

import (
	"strings"

	"github.com/brianjwalters/lexorch/internal/model"
)

// Size thresholds in characters. At an exact threshold the lower category
// wins (comparison is <=).
const (
	VerySmallThreshold = 5_000
	SmallThreshold     = 50_000
	MediumThreshold    = 150_000

	// DefaultCharsPerToken is the conservative characters-per-token ratio
	// used to estimate token count for legal text.
	DefaultCharsPerToken = 4.0
)

// metadata keys tried, in order, for an externally-supplied page count.
var pageCountKeys = []string{"pages", "page_count", "num_pages", "pageCount"}

// Detector analyzes document text and determines its size category. It
// holds only configuration (the chars-per-token ratio); it has no other
// state and is safe to share across goroutines.
type Detector struct {
	CharsPerToken float64
}

// New returns a Detector using the default chars-per-token ratio.
func New() *Detector {
	return &Detector{CharsPerToken: DefaultCharsPerToken}
}

// NewWithRatio returns a Detector using a caller-supplied chars-per-token
// ratio; a non-positive ratio falls back to the default.
func NewWithRatio(charsPerToken float64) *Detector {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &Detector{CharsPerToken: charsPerToken}
}

// Detect analyzes document text and returns its SizeInfo. metadata may be
// nil; page count is read from it with tolerant coercion.
func (d *Detector) Detect(text string, metadata map[string]any) model.SizeInfo {
	ratio := d.CharsPerToken
	if ratio <= 0 {
		ratio = DefaultCharsPerToken
	}

	chars := len(text)
	info := model.SizeInfo{
		Chars:    chars,
		Tokens:   estimateTokens(chars, ratio),
		Pages:    extractPageCount(metadata),
		Words:    estimateWords(text),
		Lines:    countLines(text),
		Category: Categorize(chars),
	}
	return info
}

func estimateTokens(chars int, charsPerToken float64) int {
	return int(float64(chars) / charsPerToken)
}

func extractPageCount(metadata map[string]any) int {
	for _, key := range pageCountKeys {
		v, ok := metadata[key]
		if !ok || v == nil {
			continue
		}
		if n, ok := coerceInt(v); ok {
			return n
		}
	}
	return 0
}

func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func estimateWords(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

// Categorize maps a character count to a SizeCategory. At an exact
// threshold the lower category wins.
func Categorize(chars int) model.SizeCategory {
	switch {
	case chars <= VerySmallThreshold:
		return model.SizeCategoryVerySmall
	case chars <= SmallThreshold:
		return model.SizeCategorySmall
	case chars <= MediumThreshold:
		return model.SizeCategoryMedium
	default:
		return model.SizeCategoryLarge
	}
}

// EstimateProcessingTime gives a coarse closed-form processing-time estimate
// in seconds, used only for routing estimates, never for billing.
func EstimateProcessingTime(info model.SizeInfo) float64 {
	switch info.Category {
	case model.SizeCategoryVerySmall:
		return 0.5
	case model.SizeCategorySmall:
		return 1.0
	case model.SizeCategoryMedium:
		chunksNeeded := float64(info.Chars/32_000 + 1)
		d := chunksNeeded * 0.85
		if d > 4.0 {
			return 4.0
		}
		return d
	default: // LARGE
		chunksNeeded := float64(info.Chars/32_000 + 1)
		return chunksNeeded * 1.0
	}
}

// costPer1KTokens is an approximate per-1K-token rate used only for coarse
// routing estimates, not for billing.
const costPer1KTokens = 0.000656

// EstimateCost gives a coarse closed-form cost estimate in USD, used only
// for routing estimates, never for billing.
func EstimateCost(info model.SizeInfo) float64 {
	switch info.Category {
	case model.SizeCategoryVerySmall:
		return 5810 * costPer1KTokens / 1000
	case model.SizeCategorySmall:
		return 30838 * costPer1KTokens / 1000
	case model.SizeCategoryMedium:
		chunksNeeded := float64(info.Chars/32_000 + 1)
		return chunksNeeded * 30838 * costPer1KTokens / 1000
	default: // LARGE
		chunksNeeded := float64(info.Chars/32_000 + 1)
		return chunksNeeded * 30838 * costPer1KTokens / 1000
	}
}
