package dispatch

import "github.com/emergentlabs/agentsim/internal/kernelerr"

// ActionResult is the uniform return shape for every dispatch call.
// success/message are always populated; error fields only on failure.
type ActionResult struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`

	ResourcesConsumed map[string]float64 `json:"resources_consumed,omitempty"`
	ChargedTo         string             `json:"charged_to,omitempty"`

	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorCategory string         `json:"error_category,omitempty"`
	Retriable     bool           `json:"retriable,omitempty"`
	ErrorDetails  map[string]any `json:"error_details,omitempty"`
}

// Ok builds a successful result.
func Ok(message string, data map[string]any) ActionResult {
	return ActionResult{Success: true, Message: message, Data: data}
}

// Fail builds a failed result from a KernelError, extracting code/category/
// retriable/details the way an HTTP status gets extracted from a
// structured service error code.
func Fail(err error) ActionResult {
	if ke, ok := kernelerr.As(err); ok {
		return ActionResult{
			Success:       false,
			Message:       ke.Message,
			ErrorCode:     string(ke.Code),
			ErrorCategory: string(ke.Category),
			Retriable:     ke.Retriable,
			ErrorDetails:  ke.Details,
		}
	}
	return ActionResult{Success: false, Message: err.Error()}
}
