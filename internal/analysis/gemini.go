// Package analysis holds the two external analysis capabilities of the
// enrichment pipeline: image description via the Gemini API and audio emotion
// scoring via a local subprocess. Both are fallible by nature; failures
// surface as apperr.ExternalServiceError and never corrupt stored events.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/safewatch/safewatch-server/internal/apperr"
)

// descriptionPrompt asks for a compact incident summary a dispatcher can act
// on. One prompt, one response; there is no conversation state.
const descriptionPrompt = `You are assisting an emergency response service. ` +
	`Analyze the attached photo(s) of an emergency scene and write a single factual description of about 100 words covering:
1. The main subject of the scene and what appears to have happened.
2. Any people or vehicles involved and their apparent condition.
3. Visible hazards such as fire, smoke, debris, or blocked roads.
4. The setting and surroundings that would help responders locate or assess the scene.

Describe only what is visible. Do not speculate beyond the images, do not add headings or bullet points, and respond with the description text only.`

// ImageInput is one image handed to the describer.
type ImageInput struct {
	MIMEType string
	Data     []byte
}

// GeminiDescriber produces scene descriptions from event photos.
type GeminiDescriber struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini API client using the given API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiDescriber wraps a Gemini client as a describer.
func NewGeminiDescriber(client *genai.Client) *GeminiDescriber {
	return &GeminiDescriber{client: client}
}

// DescribeImages sends all images in a single GenerateContent call and
// returns the model's description text.
func (d *GeminiDescriber) DescribeImages(ctx context.Context, images []ImageInput) (string, error) {
	if len(images) == 0 {
		return "", &apperr.ValidationError{Field: "images", Reason: "nothing to describe"}
	}

	parts := buildImageParts(images)
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	modelName := GetModelName()
	callStart := time.Now()
	log.Debug().
		Str("model", modelName).
		Int("imageCount", len(images)).
		Msg("Starting Gemini API call for scene description")

	resp, err := d.client.Models.GenerateContent(ctx, modelName, contents, nil)
	duration := time.Since(callStart)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Gemini description call failed")
		return "", &apperr.ExternalServiceError{Service: "gemini", Err: err}
	}
	if resp == nil {
		return "", &apperr.ExternalServiceError{Service: "gemini", Err: fmt.Errorf("empty response")}
	}

	description := strings.TrimSpace(resp.Text())
	if description == "" {
		return "", &apperr.ExternalServiceError{Service: "gemini", Err: fmt.Errorf("response contained no text")}
	}

	log.Info().
		Str("model", modelName).
		Int("imageCount", len(images)).
		Int("descriptionLength", len(description)).
		Dur("duration", duration).
		Msg("Scene description generated")
	return description, nil
}

// buildImageParts assembles the request parts: images first, prompt last.
func buildImageParts(images []ImageInput) []*genai.Part {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType,
				Data:     img.Data,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: descriptionPrompt})
	return parts
}
