package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Image generation has no token accounting on the remote side; a flat
// figure approximates one generation for the analytics log.
const imageGenTokenEquivalent = 1000

// generationFailures maps remote status codes to user-facing texts.
var generationFailures = map[int]string{
	400: "Запрос отклонён: описание нарушает правила генерации изображений.",
	401: "Сервис генерации изображений недоступен: ошибка доступа.",
	403: "Сервис генерации изображений недоступен: ошибка доступа.",
	429: "Слишком много запросов на генерацию. Подождите немного и попробуйте снова.",
}

const generationFailureFallback = "Не удалось сгенерировать изображение. Попробуйте ещё раз."

// GenerateImage is a one-shot side path that bypasses the dialogue: the
// prompt goes straight to the image model and the result is a URL. The
// approximate cost is forwarded to the usage sink.
func (g *Gateway) GenerateImage(ctx context.Context, actor Actor, prompt string) (string, error) {
	resp, err := g.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.cfg.ImageModel,
		N:              1,
		Size:           g.cfg.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("image generation returned no data")
	}

	if g.usage != nil {
		g.usage.Record(ctx, actor.ID, actor.Username, imageGenTokenEquivalent)
	}

	g.logger.Info("Generated image",
		zap.Int64("user_id", actor.ID),
		zap.Int("prompt_len", len(prompt)))
	return resp.Data[0].URL, nil
}

// GenerationFailureMessage maps a generation error to the text shown to the
// user, falling back to a generic line for unmatched status codes.
func GenerationFailureMessage(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if msg, ok := generationFailures[apiErr.HTTPStatusCode]; ok {
			return msg
		}
	}
	return generationFailureFallback
}
