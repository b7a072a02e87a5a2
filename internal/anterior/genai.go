package anterior

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"caleon/internal/types"
)

// =============================================================================
// GOOGLE GENAI ANTERIOR ADAPTER
// =============================================================================

// GenAIAdapter consults Gemini for the initial verdict. It is optional; the
// reasoner's degradation contract applies to every error returned here.
type GenAIAdapter struct {
	client *genai.Client
	model  string
}

// NewGenAIAdapter creates a Gemini-backed adapter.
func NewGenAIAdapter(apiKey, model string) (*GenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIAdapter{client: client, model: model}, nil
}

// Reason asks the model for a one-line judgment of the resonated stimulus.
// Confidence is the resonance score raised toward 1, since a model-backed
// verdict outranks the offline heuristic.
func (a *GenAIAdapter) Reason(ctx context.Context, resonance types.ResonanceRecord) (string, float64, error) {
	prompt := fmt.Sprintf(
		"Respond with a single concise sentence reacting to a stimulus whose salient patterns are: %s.",
		strings.Join(resonance.Patterns, ", "))

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", 0, fmt.Errorf("GenAI reason failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", 0, fmt.Errorf("no candidates returned")
	}

	confidence := types.Clamp(0.6+resonance.ResonanceScore*0.4, 0, 1)
	return text, confidence, nil
}
