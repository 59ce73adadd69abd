package ai

import (
	"context"
	"fmt"

	"github.com/bananagen/backend/internal/model"
)

// Gemini Flash chats back unless told very firmly not to.
const systemPrompt = `You are a strict Image Generation API.
You are NOT a chat assistant. You DO NOT converse.
If you cannot generate an image, output "ERROR: Cannot generate".`

const defaultPosesPrompt = "Generate a random dynamic full-body pose."

func buildMessages(prompt, imageBase64 string, mode model.Mode) []message {
	if prompt == "" && mode == model.ModePoses {
		prompt = defaultPosesPrompt
	}

	messages := []message{
		{Role: "system", Content: systemPrompt},
	}

	if imageBase64 != "" {
		messages = append(messages, message{
			Role: "user",
			Content: []contentPart{
				{
					Type: "text",
					Text: fmt.Sprintf(`Analyze this input image and generate a NEW high-quality image based on these instructions: %q. Return ONLY the image URL.`, prompt),
				},
				{
					Type:     "image_url",
					ImageURL: &imageURL{URL: imageBase64},
				},
			},
		})
	} else {
		messages = append(messages, message{
			Role:    "user",
			Content: fmt.Sprintf(`Generate a high-quality image of: %q. Return ONLY the URL.`, prompt),
		})
	}

	return messages
}

// buildRefPairMessages composes a two-image request: a style reference and a
// target to transform.
func buildRefPairMessages(prompt, refImageBase64, targetImageBase64 string) []message {
	return []message{
		{Role: "system", Content: systemPrompt},
		{
			Role: "user",
			Content: []contentPart{
				{
					Type: "text",
					Text: fmt.Sprintf(`Use the first image as a style/appearance reference and apply it to the second image according to these instructions: %q. Return ONLY the image URL.`, prompt),
				},
				{Type: "image_url", ImageURL: &imageURL{URL: refImageBase64}},
				{Type: "image_url", ImageURL: &imageURL{URL: targetImageBase64}},
			},
		},
	}
}

// GenerateRefPair runs a reference-pair generation with both images attached.
func (c *Client) GenerateRefPair(ctx context.Context, modelID, prompt, refImageBase64, targetImageBase64 string) (string, error) {
	if targetImageBase64 == "" {
		return c.GenerateImage(ctx, modelID, prompt, refImageBase64, model.ModeRef)
	}
	return c.generateWithMessages(ctx, modelID, buildRefPairMessages(prompt, refImageBase64, targetImageBase64))
}
