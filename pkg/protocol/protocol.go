// Package protocol defines the messages exchanged between the coordinator,
// the page agent and status listeners. Messages are JSON objects
// discriminated by their "action" field.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/entrhq/postpilot/pkg/post"
)

// Action names a message type.
type Action string

const (
	ActionStartPostCreation Action = "startPostCreation"
	ActionPostStatus        Action = "postStatus"
	ActionPing              Action = "ping"
	ActionInspectDOM        Action = "inspectDOM"
	ActionGetPostStatus     Action = "getPostStatus"
	ActionCreatePost        Action = "createPost"
	ActionCheckTargetPage   Action = "checkTargetPage"
	ActionOpenTargetPage    Action = "openTargetPage"
)

// PostData is the payload of a startPostCreation or createPost request.
type PostData struct {
	Image   string `json:"image"`
	Caption string `json:"caption,omitempty"`
}

// Request is a message sent to the page agent or the coordinator.
type Request struct {
	Action Action    `json:"action"`
	PostID string    `json:"postId,omitempty"`
	Data   *PostData `json:"data,omitempty"`
}

// Response answers a Request. Only the fields relevant to the request's
// action are set.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// ping
	Alive bool   `json:"alive,omitempty"`
	URL   string `json:"url,omitempty"`

	// inspectDOM
	HasCreateButton bool   `json:"hasCreateButton,omitempty"`
	HasModal        bool   `json:"hasModal,omitempty"`
	BodyClasses     string `json:"bodyClasses,omitempty"`

	// getPostStatus
	Status *post.Operation `json:"status,omitempty"`

	// createPost, checkTargetPage, openTargetPage
	PostID string `json:"postId,omitempty"`
	TabID  string `json:"tabId,omitempty"`
	Found  bool   `json:"found,omitempty"`
	IsNew  bool   `json:"isNew,omitempty"`
}

// StatusMessage is the postStatus push sent for every status event.
type StatusMessage struct {
	Action  Action      `json:"action"`
	PostID  string      `json:"postId"`
	Status  post.Status `json:"status"`
	Error   string      `json:"error,omitempty"`
	Success bool        `json:"success,omitempty"`
}

// NewStartPostCreation builds the request that runs a post workflow.
func NewStartPostCreation(operationID string, p post.Payload) Request {
	return Request{
		Action: ActionStartPostCreation,
		PostID: operationID,
		Data:   &PostData{Image: p.Image.Value, Caption: p.Caption},
	}
}

// Payload extracts and validates the post payload of a startPostCreation
// or createPost request.
func (r Request) Payload() (post.Payload, error) {
	if r.Data == nil || r.Data.Image == "" {
		return post.Payload{}, fmt.Errorf("no image provided")
	}
	ref, err := post.ParseImageReference(r.Data.Image)
	if err != nil {
		return post.Payload{}, err
	}
	p := post.Payload{Image: ref, Caption: r.Data.Caption}
	if err := p.Validate(); err != nil {
		return post.Payload{}, err
	}
	return p, nil
}

// Validate checks that the request carries what its action needs.
func (r Request) Validate() error {
	switch r.Action {
	case ActionStartPostCreation:
		if r.PostID == "" {
			return fmt.Errorf("%s requires postId", r.Action)
		}
		_, err := r.Payload()
		return err
	case ActionCreatePost:
		if r.PostID != "" {
			return fmt.Errorf("%s assigns its own postId", r.Action)
		}
		_, err := r.Payload()
		return err
	case ActionGetPostStatus:
		if r.PostID == "" {
			return fmt.Errorf("%s requires postId", r.Action)
		}
		return nil
	case ActionPing, ActionInspectDOM, ActionCheckTargetPage, ActionOpenTargetPage:
		return nil
	case "":
		return fmt.Errorf("missing action")
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
}

// NewStatusMessage converts a status event to its wire form.
func NewStatusMessage(ev post.StatusEvent) StatusMessage {
	return StatusMessage{
		Action:  ActionPostStatus,
		PostID:  ev.OperationID,
		Status:  ev.Status,
		Error:   ev.Error,
		Success: ev.Success,
	}
}

// Event converts the message back to a status event.
func (m StatusMessage) Event() post.StatusEvent {
	return post.StatusEvent{OperationID: m.PostID, Status: m.Status, Error: m.Error, Success: m.Success}
}

// ErrorResponse builds a failed response for err.
func ErrorResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// DecodeRequest parses a JSON request.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("failed to decode request: %w", err)
	}
	return req, nil
}

// DecodeResponse parses a JSON response.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

// Encode marshals any protocol message.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}
