// ABOUTME: Directory fetches: group list and default system prompts
// ABOUTME: Consumed once at session start; the core only needs the snapshots

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/niushuanan/omnitalk-x/internal/directory"
)

// FetchGroups retrieves the group directory snapshot.
func (c *Client) FetchGroups(ctx context.Context) ([]directory.GroupInfo, error) {
	raw, err := c.get(ctx, "/api/groups")
	if err != nil {
		return nil, err
	}

	var body struct {
		Success bool                  `json:"success"`
		Groups  []directory.GroupInfo `json:"groups"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parsing group list: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("group directory refused the request")
	}
	return body.Groups, nil
}

// FetchDefaultPrompts retrieves the model-key -> default system prompt map.
func (c *Client) FetchDefaultPrompts(ctx context.Context) (map[string]string, error) {
	raw, err := c.get(ctx, "/api/default-prompts")
	if err != nil {
		return nil, err
	}

	var body struct {
		Prompts map[string]string `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parsing default prompts: %w", err)
	}
	return body.Prompts, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
}
