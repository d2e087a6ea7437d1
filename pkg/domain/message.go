package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of a client/host message.
type MessageType string

// Client -> host request types.
const (
	MsgRefineWorkflow       MessageType = "REFINE_WORKFLOW"
	MsgClearConversation    MessageType = "CLEAR_CONVERSATION"
	MsgOpenWorkflowInEditor MessageType = "OPEN_WORKFLOW_IN_EDITOR"
)

// Host -> client response types.
const (
	MsgRefinementSuccess   MessageType = "REFINEMENT_SUCCESS"
	MsgRefinementFailed    MessageType = "REFINEMENT_FAILED"
	MsgConversationCleared MessageType = "CONVERSATION_CLEARED"
	MsgError               MessageType = "ERROR"
)

// Host -> client push events. They never carry a request id.
const (
	MsgPreviewModeInit   MessageType = "PREVIEW_MODE_INIT"
	MsgPreviewUpdate     MessageType = "PREVIEW_UPDATE"
	MsgPreviewParseError MessageType = "PREVIEW_PARSE_ERROR"
)

// Message is the envelope of every exchange on the client/host channel.
type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message, encoding payload as JSON. A nil payload is omitted.
func NewMessage(t MessageType, requestID string, payload any) (Message, error) {
	msg := Message{Type: t, RequestID: requestID}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// FailureCode is the machine-readable reason of a refinement failure.
type FailureCode string

const (
	CodeTimeout               FailureCode = "TIMEOUT"
	CodeParseError            FailureCode = "PARSE_ERROR"
	CodeValidationError       FailureCode = "VALIDATION_ERROR"
	CodeIterationLimitReached FailureCode = "ITERATION_LIMIT_REACHED"
	CodeCancelled             FailureCode = "CANCELLED"
	CodeCommandNotFound       FailureCode = "COMMAND_NOT_FOUND"
	CodeUnknownError          FailureCode = "UNKNOWN_ERROR"
)

// RefineWorkflowPayload is sent with REFINE_WORKFLOW.
type RefineWorkflowPayload struct {
	WorkflowID          string               `json:"workflowId"`
	UserMessage         string               `json:"userMessage"`
	CurrentWorkflow     Workflow             `json:"currentWorkflow"`
	ConversationHistory *ConversationHistory `json:"conversationHistory"`
	TimeoutMs           int64                `json:"timeoutMs"`
}

// RefinementSuccessPayload is received with REFINEMENT_SUCCESS.
type RefinementSuccessPayload struct {
	RefinedWorkflow            Workflow             `json:"refinedWorkflow"`
	AIMessage                  *ConversationMessage `json:"aiMessage,omitempty"`
	UpdatedConversationHistory *ConversationHistory `json:"updatedConversationHistory"`
	ExecutionTimeMs            int64                `json:"executionTimeMs"`
	Timestamp                  time.Time            `json:"timestamp"`
}

// FailureDetail is the typed rejection carried by REFINEMENT_FAILED.
type FailureDetail struct {
	Code    FailureCode `json:"code"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
}

// RefinementFailedPayload is received with REFINEMENT_FAILED.
type RefinementFailedPayload struct {
	Error           FailureDetail `json:"error"`
	ExecutionTimeMs int64         `json:"executionTimeMs"`
	Timestamp       time.Time     `json:"timestamp"`
}

// ConversationPayload is carried by CLEAR_CONVERSATION and CONVERSATION_CLEARED.
type ConversationPayload struct {
	WorkflowID string `json:"workflowId"`
}

// ErrorPayload is the generic fallback carried by ERROR.
type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// OpenInEditorPayload is sent with OPEN_WORKFLOW_IN_EDITOR.
type OpenInEditorPayload struct {
	WorkflowID string `json:"workflowId"`
	Path       string `json:"path,omitempty"`
}

// PreviewPayload is pushed with PREVIEW_MODE_INIT and PREVIEW_UPDATE.
type PreviewPayload struct {
	Workflow Workflow `json:"workflow"`
}

// PreviewParseErrorPayload is pushed with PREVIEW_PARSE_ERROR.
type PreviewParseErrorPayload struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}
