package intent

import "strings"

// ImageDetector recognizes free-text requests to generate an image. A
// positive match bypasses the dialogue pipeline and goes straight to the
// image model.
type ImageDetector struct{}

// Imperative triggers: the verb (or verb phrase) must open the message.
var imperativeTriggers = []string{
	"нарисуй",
	"сгенерируй картинку",
	"сгенерируй изображение",
	"draw",
	"generate image",
	"generate an image",
	"generate a picture",
}

// Noun-phrase triggers: "picture of a cat" style openings. These only count
// when followed by enough further text to look like an actual description.
var nounTriggers = []string{
	"картинка",
	"картинку",
	"изображение",
	"фото",
	"picture",
	"photo",
}

const minDescriptionLen = 3

// IsImageRequest classifies text as an image-generation request. Matching
// is done on the lowercased message.
func (ImageDetector) IsImageRequest(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}

	for _, trigger := range imperativeTriggers {
		if hasWordPrefix(t, trigger) {
			return true
		}
	}
	for _, trigger := range nounTriggers {
		if hasWordPrefix(t, trigger) && len(t) >= len(trigger)+1+minDescriptionLen {
			return true
		}
	}
	return false
}

// hasWordPrefix reports whether text starts with prefix as a whole word, so
// "draw me a cat" matches "draw" but "drawing tablets" does not.
func hasWordPrefix(text, prefix string) bool {
	if !strings.HasPrefix(text, prefix) {
		return false
	}
	if len(text) == len(prefix) {
		return true
	}
	next := text[len(prefix)]
	return next == ' ' || next == ',' || next == ':' || next == '!'
}
