// Package anthropic wraps the official SDK behind the narrow interface
// the retrieval orchestrator needs: single completion turns with tool
// definitions, and streaming turns that surface text deltas as they
// arrive.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the model-provider operations used by the orchestrator.
type Client interface {
	// CreateMessage requests one completion turn.
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
	// StreamMessage requests one completion turn with token streaming.
	// onText is called for each text delta in arrival order; the full
	// accumulated response is returned at the end of the turn.
	StreamMessage(ctx context.Context, req MessageRequest, onText func(string)) (*MessageResponse, error)
}

// Tool declares one invocable capability: name, description, and a
// JSON-schema parameter spec.
type Tool struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// MessageRequest is one completion call.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature *float64
}

// Roles of a conversational message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversational message. Content blocks carry
// text, tool-use requests (assistant), or tool results (user).
type Message struct {
	Role    string
	Content []ContentBlock
}

// ContentBlock is one block of message content. The variant populated
// matches Type.
type ContentBlock struct {
	Type string // "text", "tool_use", "tool_result"

	Text string

	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage

	ToolResult  string
	ToolIsError bool
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ToolResultMessage builds the user-role message that feeds a tool
// result back into the next turn.
func ToolResultMessage(toolUseID, result string, isError bool) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{{
		Type:        "tool_result",
		ToolUseID:   toolUseID,
		ToolResult:  result,
		ToolIsError: isError,
	}}}
}

// ToolUse is one capability invocation requested by the model.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// MessageResponse is one completed turn.
type MessageResponse struct {
	ID         string
	Model      string
	Text       string
	ToolUses   []ToolUse
	StopReason string
	Usage      TokenUsage
}

// AsMessage converts the response into the assistant message to append
// to the conversation before the next turn.
func (r *MessageResponse) AsMessage() Message {
	msg := Message{Role: RoleAssistant}
	if r.Text != "" {
		msg.Content = append(msg.Content, ContentBlock{Type: "text", Text: r.Text})
	}
	for _, tu := range r.ToolUses {
		msg.Content = append(msg.Content, ContentBlock{
			Type:      "tool_use",
			ToolUseID: tu.ID,
			ToolName:  tu.Name,
			ToolInput: tu.Input,
		})
	}
	return msg
}

// TokenUsage tracks token consumption across a session.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Add accumulates usage from another turn.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// Total returns the combined input and output token count.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// IsRateLimited reports whether err is an HTTP 429 from the API, so
// callers can apply their own backoff.
func IsRateLimited(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == 429
}

// IsAuthError reports whether err is an authentication or authorization
// failure (401/403).
func IsAuthError(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && (apierr.StatusCode == 401 || apierr.StatusCode == 403)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.client.Messages.New(ctx, toSDKParams(req))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

func (c *sdkClient) StreamMessage(ctx context.Context, req MessageRequest, onText func(string)) (*MessageResponse, error) {
	stream := c.client.Messages.NewStreaming(ctx, toSDKParams(req))

	var acc sdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, eris.Wrap(err, "anthropic: accumulate stream event")
		}
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if onText != nil && delta.Text != "" {
					onText(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: stream message")
	}

	return fromSDKMessage(&acc), nil
}

// --- SDK type conversion helpers ---

func toSDKParams(req MessageRequest) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = sdk.ToolUnionParam{
				OfTool: &sdk.ToolParam{
					Name:        t.Name,
					Description: sdk.String(t.Description),
					InputSchema: sdk.ToolInputSchemaParam{
						Properties: t.Properties,
						Required:   t.Required,
					},
				},
			}
		}
		params.Tools = tools
	}
	return params
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case "text":
				blocks = append(blocks, sdk.NewTextBlock(b.Text))
			case "tool_use":
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{
						ID:    b.ToolUseID,
						Name:  b.ToolName,
						Input: b.ToolInput,
					},
				})
			case "tool_result":
				blocks = append(blocks, sdk.NewToolResultBlock(b.ToolUseID, b.ToolResult, b.ToolIsError))
			default:
				zap.L().Warn("unknown content block type skipped", zap.String("type", b.Type))
			}
		}
		switch m.Role {
		case RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			out = append(out, sdk.NewUserMessage(blocks...))
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			resp.Text += b.Text
		case "tool_use":
			resp.ToolUses = append(resp.ToolUses, ToolUse{
				ID:    b.ID,
				Name:  b.Name,
				Input: b.Input,
			})
		}
	}
	return resp
}
