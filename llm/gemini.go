package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/farmaturno/farmacias-api/normalizer"
)

const defaultModel = "gemini-2.0-flash"

// maxCandidatesInPrompt bounds the prompt size. Chile has around 350
// comunas, which fit comfortably; this only guards against a broken index.
const maxCandidatesInPrompt = 400

// Compile-time check to ensure GeminiProvider implements Provider interface
var _ Provider = (*GeminiProvider)(nil)

// GeminiProvider answers comuna-resolution prompts through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a provider for the given API key. The key is
// required; wiring decides beforehand whether a fallback exists at all.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiProvider{client: client, model: model}, nil
}

// ResolveComuna asks the model to pick one candidate for query. The answer
// must match a candidate after normalization; accent and casing drift is
// tolerated, anything else is an error.
func (g *GeminiProvider) ResolveComuna(ctx context.Context, query string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no candidate comunas")
	}

	shown := candidates
	if len(shown) > maxCandidatesInPrompt {
		shown = shown[:maxCandidatesInPrompt]
	}

	temperature := float32(0.1)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(query, shown)), config)
	if err != nil {
		return "", fmt.Errorf("generate content error: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	return parseAnswer(text, candidates)
}

type comunaAnswer struct {
	Comuna string `json:"comuna"`
}

// parseAnswer extracts the model's pick and validates it against the
// candidate list.
func parseAnswer(text string, candidates []string) (string, error) {
	var answer comunaAnswer
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), &answer); err != nil {
		return "", fmt.Errorf("failed to unmarshal fallback response: %w. Response: %s", err, text)
	}

	comuna := strings.TrimSpace(answer.Comuna)
	if comuna == "" {
		return "", fmt.Errorf("no comuna identified")
	}

	want := normalizer.Normalize(comuna)
	for _, candidate := range candidates {
		if normalizer.Normalize(candidate) == want {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("fallback answered %q, which is not a known comuna", answer.Comuna)
}

func buildPrompt(query string, candidates []string) string {
	return fmt.Sprintf(`Eres un asistente que identifica comunas chilenas en consultas sobre farmacias.

CONSULTA: %q

COMUNAS VALIDAS: %s

INSTRUCCIONES:
1. Identifica la comuna aludida por la consulta, incluso con errores de tipeo o apodos.
2. Responde SOLO con una comuna de la lista, escrita exactamente como aparece.
3. Si ninguna comuna de la lista corresponde, responde con una cadena vacia.

RESPONDE EN FORMATO JSON:
{"comuna": "nombre exacto de la lista o vacio"}`, query, strings.Join(candidates, ", "))
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// cleanJSONBlock strips the Markdown fences some models wrap around JSON
// even when asked for a bare object.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
