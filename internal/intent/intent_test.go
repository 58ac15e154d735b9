package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsImageRequest(t *testing.T) {
	var d ImageDetector

	tests := []struct {
		text string
		want bool
	}{
		{"Нарисуй кота в сапогах", true},
		{"нарисуй, пожалуйста, закат", true},
		{"Сгенерируй картинку с горами", true},
		{"сгенерируй изображение города будущего", true},
		{"draw me a cat", true},
		{"Draw a medieval castle", true},
		{"generate image of a sunset over the sea", true},
		{"Generate an image: neon city", true},
		{"generate a picture of a dog", true},
		{"картинка с котом на окне", true},
		{"picture of a red bicycle", true},
		{"photo of mountains at dawn", true},

		{"drawing tablets are great", false},
		{"photosynthesis is fascinating", false},
		{"картинка", false},
		{"photo ok", false},
		{"расскажи про нейросети", false},
		{"what is the weather like", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsImageRequest(tt.text))
		})
	}
}
