package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestMockClientRoundTrip(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Extract products."}},
	}
	expected := &MessageResponse{
		ID:      "msg_1",
		Content: []ContentBlock{{Type: "text", Text: `[]`}},
	}
	mc.On("CreateMessage", ctx, req).Return(expected, nil)

	resp, err := mc.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, expected, resp)
	mc.AssertExpectations(t)
}

func TestResponseText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", resp.Text())
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("You are a trade analyst.")

	require.Len(t, blocks, 1)
	assert.Equal(t, "You are a trade analyst.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestEstimateCostKnownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.80, cost, 0.001)
}

func TestEstimateCostUnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1000, OutputTokens: 1000}
	assert.Equal(t, 0.0, usage.EstimateCost("mystery-model"))
}

func TestStatusCodeNonSDKError(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("plain error")))
	assert.Equal(t, 0, StatusCode(nil))
}
