// ABOUTME: Non-stream chat completion call and the reply fallback-chain decoder
// ABOUTME: Non-2xx statuses become synthetic reply text, never an error past this boundary

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/niushuanan/omnitalk-x/internal/log"
)

// Reply placeholders and synthetic error texts, kept as the product's
// literal wire values.
const (
	NoReplyText      = "[无回复]"
	EmptyContentText = "无回复"
)

// maxReplyBody bounds how much of a response body is read.
const maxReplyBody = 1 << 20

// ChatMessage is one message in the outbound request body.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPayload is the JSON body of a chat completion request.
type ChatPayload struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	Messages    []ChatMessage `json:"messages"`
}

// ChatCompletion POSTs a non-stream completion request to the provider's
// endpoint. Non-2xx responses and unrecognized body shapes are contained
// here: the returned text is then a synthetic error or placeholder. Only
// transport failures surface as an error.
func (c *Client) ChatCompletion(ctx context.Context, provider, apiKey string, payload ChatPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling chat payload: %w", err)
	}

	path := "/api/v1/" + provider + "/chat/completions/non-stream"
	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Api-Key":    apiKey,
	}

	log.Debug("gateway: POST %s%s model=%s messages=%d", c.baseURL, path, payload.Model, len(payload.Messages))
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	log.Debug("gateway: POST %s%s → %d", c.baseURL, path, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("[错误: HTTP %d]", resp.StatusCode), nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	return DecodeReply(raw), nil
}

// replyBody covers every response shape the gateway is known to produce.
type replyBody struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DecodeReply interprets a response body by trying, in order: the
// success+msg shape, the OpenAI-style choices shape, a bare msg field; any
// other shape yields the no-reply placeholder.
func DecodeReply(raw []byte) string {
	var body replyBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return NoReplyText
	}

	if body.Success && body.Msg != "" {
		return body.Msg
	}
	if len(body.Choices) > 0 {
		if content := body.Choices[0].Message.Content; content != "" {
			return content
		}
		return EmptyContentText
	}
	if body.Msg != "" {
		return body.Msg
	}
	return NoReplyText
}
