package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

const systemPrompt = "You identify retail products from photos of discount " +
	"sticker regions. You are given a crop image and a numbered shortlist of " +
	"candidate products. Answer with JSON only: " +
	`{"product_id": "<id from the shortlist or null>", "rationale": "<one sentence>"}. ` +
	"Use null when none of the candidates match the photo."

// OpenAIClient implements Oracle using the OpenAI chat completions API
// format. This covers vLLM, Ollama, LM Studio, and OpenAI itself.
type OpenAIClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewOpenAIClient returns a client for an OpenAI-compatible chat completions
// endpoint. The per-call timeout comes from the caller's context; the HTTP
// client carries the configured ceiling as a backstop.
func NewOpenAIClient(cfg *conf.OracleConfig) *OpenAIClient {
	return &OpenAIClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// chatRequest is the JSON body sent to /v1/chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatResponse is the JSON response from /v1/chat/completions (OpenAI format).
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// answer is the JSON contract the model is instructed to follow.
type answer struct {
	ProductID *string `json:"product_id"`
	Rationale string  `json:"rationale"`
}

// Confirm sends the crop image and candidate shortlist to the model and
// parses its pick. Calling with an empty shortlist is a caller bug and fails
// immediately without a network round trip.
func (c *OpenAIClient) Confirm(ctx context.Context, crop *detection.Crop, candidates []detection.CandidateMatch) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, errors.NoCandidatesError()
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    buildMessages(crop, candidates),
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		return Decision{}, errors.Newf("marshal oracle request: %w", err).
			Category(errors.CategoryOracleUnavailable).
			Build()
	}

	url := c.endpoint + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, errors.New(err).
			Category(errors.CategoryOracleUnavailable).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Decision{}, errors.Newf("HTTP POST %s: %w", url, err).
			Category(errors.CategoryOracleUnavailable).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Decision{}, errors.Newf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody)).
			Category(errors.CategoryOracleUnavailable).
			Context("status_code", resp.StatusCode).
			Build()
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Decision{}, errors.Newf("decode oracle response: %w", err).
			Category(errors.CategoryOracleUnavailable).
			Build()
	}
	if len(result.Choices) == 0 {
		return Decision{}, errors.Newf("no choices returned from %s", url).
			Category(errors.CategoryOracleUnavailable).
			Build()
	}

	return parseAnswer(result.Choices[0].Message.Content)
}

// buildMessages assembles the system and user messages, embedding the crop as
// a base64 data URI the way OpenAI-compatible vision endpoints expect.
func buildMessages(crop *detection.Crop, candidates []detection.CandidateMatch) []chatMessage {
	var sb strings.Builder
	sb.WriteString("Candidate products:\n")
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "%d. id=%s name=%q category=%s\n", cand.Rank, cand.ProductID, cand.Name, cand.Category)
	}
	sb.WriteString("Which candidate is shown in the image?")

	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(crop.ImageBytes)

	return []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			{Type: "text", Text: sb.String()},
		}},
	}
}

// parseAnswer extracts the JSON answer from the model's reply. Models wrap
// JSON in code fences often enough that we strip them before decoding. A
// reply we cannot decode is a contract violation surfaced to the caller.
func parseAnswer(content string) (Decision, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var ans answer
	if err := json.Unmarshal([]byte(trimmed), &ans); err != nil {
		return Decision{}, errors.Newf("oracle reply is not the agreed JSON shape: %w", err).
			Category(errors.CategoryOracleContract).
			Context("reply_length", len(content)).
			Build()
	}

	decision := Decision{Rationale: ans.Rationale}
	if ans.ProductID != nil {
		decision.ProductID = strings.TrimSpace(*ans.ProductID)
		// Some models answer the literal string "null" instead of JSON null.
		if strings.EqualFold(decision.ProductID, "null") || strings.EqualFold(decision.ProductID, "none") {
			decision.ProductID = ""
		}
	}
	return decision, nil
}
