package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

const testEndpoint = "http://oracle.test"
const completionsURL = testEndpoint + "/v1/chat/completions"

func newTestClient() *OpenAIClient {
	return NewOpenAIClient(&conf.OracleConfig{
		Endpoint: testEndpoint,
		Model:    "test-vlm",
		APIKey:   "sk-test",
		Timeout:  5 * time.Second,
	})
}

func testCrop() *detection.Crop {
	return &detection.Crop{
		ImageBytes:         []byte{0xff, 0xd8, 0xff}, // jpeg magic is enough for the wire format
		SourceVideoID:      "vid-1",
		BranchID:           "branch-7",
		DetectorConfidence: 0.9,
		Timestamp:          time.Now(),
	}
}

func testCandidates() []detection.CandidateMatch {
	return []detection.CandidateMatch{
		{ProductID: "P1", Name: "Sourdough Loaf", Category: "bakery", Similarity: 0.71, Rank: 1},
		{ProductID: "P2", Name: "Chicken Sandwich", Category: "food-to-go", Similarity: 0.70, Rank: 2},
	}
}

func chatReply(content string) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
}

func TestConfirmParsesPick(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, completionsURL,
		chatReply(`{"product_id": "P2", "rationale": "matches the sandwich packaging"}`))

	client := newTestClient()
	decision, err := client.Confirm(context.Background(), testCrop(), testCandidates())
	require.NoError(t, err)

	assert.Equal(t, "P2", decision.ProductID)
	assert.Equal(t, "matches the sandwich packaging", decision.Rationale)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestConfirmParsesNullAsNoMatch(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	tests := []struct {
		name    string
		content string
	}{
		{"json null", `{"product_id": null, "rationale": "nothing matches"}`},
		{"literal null string", `{"product_id": "null", "rationale": "nothing matches"}`},
		{"code fenced", "```json\n{\"product_id\": null, \"rationale\": \"nothing matches\"}\n```"},
	}

	client := newTestClient()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Reset()
			httpmock.RegisterResponder(http.MethodPost, completionsURL, chatReply(tt.content))

			decision, err := client.Confirm(context.Background(), testCrop(), testCandidates())
			require.NoError(t, err)
			assert.Empty(t, decision.ProductID)
			assert.Equal(t, "nothing matches", decision.Rationale)
		})
	}
}

func TestConfirmEmptyShortlistIsCallerBug(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	client := newTestClient()
	_, err := client.Confirm(context.Background(), testCrop(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNoCandidates))
	assert.Zero(t, httpmock.GetTotalCallCount(), "caller bug must not reach the network")
}

func TestConfirmServerErrorIsRetryable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream worker crashed"))

	client := newTestClient()
	_, err := client.Confirm(context.Background(), testCrop(), testCandidates())
	require.Error(t, err)
	assert.True(t, errors.IsOracleUnavailable(err))
}

func TestConfirmGarbageReplyIsContractViolation(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, completionsURL,
		chatReply("the first one looks right to me"))

	client := newTestClient()
	_, err := client.Confirm(context.Background(), testCrop(), testCandidates())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryOracleContract))
}

func TestConfirmRequestShape(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var captured chatRequest
	httpmock.RegisterResponder(http.MethodPost, completionsURL,
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))
			resp, _ := chatReply(`{"product_id": "P1", "rationale": "ok"}`)(req)
			return resp, nil
		})

	client := newTestClient()
	_, err := client.Confirm(context.Background(), testCrop(), testCandidates())
	require.NoError(t, err)

	assert.Equal(t, "test-vlm", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)

	// The user message carries the image and the shortlist text.
	parts, err := json.Marshal(captured.Messages[1].Content)
	require.NoError(t, err)
	assert.Contains(t, string(parts), "data:image/jpeg;base64,")
	assert.Contains(t, string(parts), "id=P1")
	assert.Contains(t, string(parts), "id=P2")
}

func TestConfirmTimeoutSurfacesAsUnavailable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, completionsURL,
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	client := newTestClient()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Confirm(ctx, testCrop(), testCandidates())
	require.Error(t, err)
	assert.True(t, errors.IsOracleUnavailable(err))
}
