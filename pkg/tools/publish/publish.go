// Package publish exposes posting as agent tools: publish_post runs a post
// workflow and post_status reports on an operation or on the target page.
package publish

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/entrhq/postpilot/pkg/coordinator"
	"github.com/entrhq/postpilot/pkg/post"
	"github.com/entrhq/postpilot/pkg/status"
	"github.com/entrhq/postpilot/pkg/tools"
)

// Poster is the part of the coordinator the tools use.
type Poster interface {
	CreatePost(ctx context.Context, payload post.Payload) coordinator.CreateResult
	GetStatus(ctx context.Context, operationID string) (post.Operation, error)
	Ping(ctx context.Context) (coordinator.PingResult, error)
}

// PublishPostTool posts an image with a caption.
type PublishPostTool struct {
	poster Poster
}

// NewPublishPostTool creates the publish_post tool.
func NewPublishPostTool(poster Poster) *PublishPostTool {
	return &PublishPostTool{poster: poster}
}

func (t *PublishPostTool) Name() string {
	return "publish_post"
}

func (t *PublishPostTool) Description() string {
	return `Post an image with a caption through the logged-in browser session.

The image may be a local file path, a data URL (data:image/jpeg;base64,...) or an HTTP(S) URL.
The caption is optional, at most 2200 characters; put hashtags at the end.`
}

func (t *PublishPostTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"image": map[string]interface{}{
				"type":        "string",
				"description": "Image to post: file path, data URL, or HTTP URL",
			},
			"caption": map[string]interface{}{
				"type":        "string",
				"description": fmt.Sprintf("Caption text for the post (max %d characters)", post.MaxCaptionLength),
			},
		},
		[]string{"image"},
	)
}

type publishInput struct {
	XMLName xml.Name `xml:"arguments"`
	Image   string   `xml:"image"`
	Caption string   `xml:"caption"`
}

func (t *PublishPostTool) parse(argsXML []byte) (post.Payload, error) {
	var input publishInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return post.Payload{}, fmt.Errorf("invalid parameters: %w", err)
	}

	ref, err := post.ParseImageReference(input.Image)
	if err != nil {
		return post.Payload{}, err
	}
	payload := post.Payload{Image: ref, Caption: strings.TrimSpace(input.Caption)}
	if err := payload.Validate(); err != nil {
		return post.Payload{}, err
	}
	return payload, nil
}

func (t *PublishPostTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	payload, err := t.parse(argsXML)
	if err != nil {
		return "", nil, err
	}

	res := t.poster.CreatePost(ctx, payload)
	meta := map[string]interface{}{
		"post_id": res.PostID,
		"success": res.Success,
	}
	if res.TabID != "" {
		meta["tab_id"] = res.TabID
	}

	if !res.Success {
		meta["error"] = res.Error
		return "", meta, fmt.Errorf("post %s failed: %s", res.PostID, res.Error)
	}
	return fmt.Sprintf("Post %s shared successfully.", res.PostID), meta, nil
}

// GeneratePreview describes the post without publishing it.
func (t *PublishPostTool) GeneratePreview(ctx context.Context, argsXML []byte) (*tools.ToolPreview, error) {
	payload, err := t.parse(argsXML)
	if err != nil {
		return nil, err
	}

	caption := payload.Caption
	if caption == "" {
		caption = "(no caption)"
	}
	return &tools.ToolPreview{
		Title:       "Publish post",
		Description: fmt.Sprintf("Image: %s", payload.Image),
		Content:     caption,
		Metadata: map[string]interface{}{
			"image_kind":     string(payload.Image.Kind),
			"caption_length": utf8.RuneCountInString(payload.Caption),
		},
	}, nil
}

// PostStatusTool reports the status of an operation, or whether the target
// page is reachable when no operation is given.
type PostStatusTool struct {
	poster Poster
}

// NewPostStatusTool creates the post_status tool.
func NewPostStatusTool(poster Poster) *PostStatusTool {
	return &PostStatusTool{poster: poster}
}

func (t *PostStatusTool) Name() string {
	return "post_status"
}

func (t *PostStatusTool) Description() string {
	return "Report the status of a post by its ID, or check that the browser is on the target site when no ID is given."
}

func (t *PostStatusTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"post_id": map[string]interface{}{
				"type":        "string",
				"description": "ID returned by publish_post. Omit to check the browser connection.",
			},
		},
		nil,
	)
}

func (t *PostStatusTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		PostID  string   `xml:"post_id"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	id := strings.TrimSpace(input.PostID)
	if id == "" {
		return t.ping(ctx)
	}

	op, err := t.poster.GetStatus(ctx, id)
	if errors.Is(err, status.ErrNotFound) {
		return fmt.Sprintf("Post %s is unknown or older than the retention window.", id), map[string]interface{}{"found": false}, nil
	}
	if err != nil {
		return "", nil, err
	}

	meta := map[string]interface{}{
		"found":  true,
		"status": string(op.Status),
	}
	msg := fmt.Sprintf("Post %s: %s", id, op.Status.Describe())
	if op.ErrorMessage != "" {
		meta["error"] = op.ErrorMessage
		msg += " " + op.ErrorMessage
	}
	return msg, meta, nil
}

func (t *PostStatusTool) ping(ctx context.Context) (string, map[string]interface{}, error) {
	res, err := t.poster.Ping(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("browser error: %w", err)
	}

	meta := map[string]interface{}{"url": res.URL, "on_target": res.OnTarget}
	url := res.URL
	if url == "" {
		url = "unknown"
	}
	if res.OnTarget {
		return fmt.Sprintf("Connected to the target site: %s", url), meta, nil
	}
	return fmt.Sprintf("Browser connected, but not on the target site (current: %s)", url), meta, nil
}

// Tools returns both tools bound to poster.
func Tools(poster Poster) []tools.Tool {
	return []tools.Tool{NewPublishPostTool(poster), NewPostStatusTool(poster)}
}
