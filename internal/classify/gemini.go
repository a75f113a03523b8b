package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jonathan/feedsync/internal/types"
)

// defaultModel is the Gemini model used for classification.
const defaultModel = "gemini-2.0-flash"

// maxDescriptionChars bounds the prompt size; descriptions beyond this add
// cost without improving label quality.
const maxDescriptionChars = 4000

// GeminiClassifier labels records with the Gemini API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a Gemini-backed classifier.
func NewGeminiClassifier(ctx context.Context, apiKey string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClassifier{client: client, model: defaultModel}, nil
}

// classificationOutput is the JSON shape the model is instructed to return.
type classificationOutput struct {
	Function  string `json:"function"`
	Industry  string `json:"industry"`
	Seniority string `json:"seniority"`
}

// Classify prompts the model for the three labels. Any failure returns an
// error; the caller publishes the entry with blank enrichment fields.
func (c *GeminiClassifier) Classify(ctx context.Context, title, description string) (types.Classification, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.ResponseMIMEType = "application/json"

	prompt := buildClassificationPrompt(title, StripMarkup(description))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return types.Classification{}, fmt.Errorf("failed to generate classification: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return types.Classification{}, err
	}

	var out classificationOutput
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), &out); err != nil {
		return types.Classification{}, fmt.Errorf("failed to parse classification response: %w", err)
	}

	return types.Classification{
		Function:  strings.TrimSpace(out.Function),
		Industry:  strings.TrimSpace(out.Industry),
		Seniority: strings.TrimSpace(out.Seniority),
	}, nil
}

// Close releases the underlying API client.
func (c *GeminiClassifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// buildClassificationPrompt constructs the labeling prompt.
func buildClassificationPrompt(title, description string) string {
	if len(description) > maxDescriptionChars {
		description = description[:maxDescriptionChars]
	}

	var sb strings.Builder
	sb.WriteString("You are an expert job taxonomist. Classify the job posting below.\n\n")
	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	sb.WriteString("  \"function\": \"string\", // job function, e.g. \"Engineering\", \"Finance\"\n")
	sb.WriteString("  \"industry\": \"string\", // employer industry, e.g. \"Healthcare\", \"Software\"\n")
	sb.WriteString("  \"seniority\": \"string\" // one of: Entry, Mid, Senior, Staff, Principal, Lead, Manager, Director, Executive\n")
	sb.WriteString("}\n\n")
	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Base labels on the text only, do not invent details.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation.\n\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n\nDescription:\n\"\"\"\n%s\n\"\"\"\n", title, description))
	return sb.String()
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
