// Package post defines the domain types shared by the coordinator, the page
// agent and the status channel: operations, their statuses and the image
// references they carry.
package post

// Status is the state of a post operation.
type Status string

const (
	StatusPending              Status = "pending"                // StatusPending indicates the coordinator accepted the request.
	StatusProcessing           Status = "processing"             // StatusProcessing indicates the request was handed to a page.
	StatusStarting             Status = "starting"               // StatusStarting indicates the workflow has begun.
	StatusClickingCreate       Status = "clicking_create"        // StatusClickingCreate indicates the create control is being opened.
	StatusWaitingForModal      Status = "waiting_for_modal"      // StatusWaitingForModal indicates the workflow waits for the create dialog.
	StatusUploadingImage       Status = "uploading_image"        // StatusUploadingImage indicates the image is being attached.
	StatusCropStep             Status = "crop_step"              // StatusCropStep indicates the crop page is being confirmed.
	StatusFilterStep           Status = "filter_step"            // StatusFilterStep indicates the filter page is being confirmed.
	StatusEnteringCaption      Status = "entering_caption"       // StatusEnteringCaption indicates the caption is being typed.
	StatusSharing              Status = "sharing"                // StatusSharing indicates the share control is being clicked.
	StatusWaitingForCompletion Status = "waiting_for_completion" // StatusWaitingForCompletion indicates the workflow waits for the site's verdict.
	StatusCompleted            Status = "completed"              // StatusCompleted indicates the post was shared.
	StatusError                Status = "error"                  // StatusError indicates the operation failed.
)

// WorkflowOrder is the exact status sequence of a successful post workflow.
var WorkflowOrder = []Status{
	StatusStarting,
	StatusClickingCreate,
	StatusWaitingForModal,
	StatusUploadingImage,
	StatusCropStep,
	StatusFilterStep,
	StatusEnteringCaption,
	StatusSharing,
	StatusWaitingForCompletion,
	StatusCompleted,
}

// IsTerminal reports whether no further transition can follow s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Describe returns the human readable text shown next to a status.
func (s Status) Describe() string {
	switch s {
	case StatusPending:
		return "Queued..."
	case StatusProcessing:
		return "Processing..."
	case StatusStarting:
		return "Starting post creation..."
	case StatusClickingCreate:
		return "Opening create dialog..."
	case StatusWaitingForModal:
		return "Waiting for dialog..."
	case StatusUploadingImage:
		return "Uploading image..."
	case StatusCropStep:
		return "Processing crop..."
	case StatusFilterStep:
		return "Skipping filters..."
	case StatusEnteringCaption:
		return "Adding caption..."
	case StatusSharing:
		return "Sharing post..."
	case StatusWaitingForCompletion:
		return "Finalizing..."
	case StatusCompleted:
		return "Post shared successfully!"
	case StatusError:
		return "Error occurred"
	default:
		return string(s)
	}
}

// StatusEvent is emitted at every workflow transition.
type StatusEvent struct {
	OperationID string `json:"postId"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	Success     bool   `json:"success,omitempty"`
}

// NewStatusEvent creates a progress event.
func NewStatusEvent(operationID string, status Status) StatusEvent {
	return StatusEvent{OperationID: operationID, Status: status}
}

// NewCompletedEvent creates the terminal success event.
func NewCompletedEvent(operationID string) StatusEvent {
	return StatusEvent{OperationID: operationID, Status: StatusCompleted, Success: true}
}

// NewErrorEvent creates the terminal failure event carrying err's message.
func NewErrorEvent(operationID string, err error) StatusEvent {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return StatusEvent{OperationID: operationID, Status: StatusError, Error: msg}
}
