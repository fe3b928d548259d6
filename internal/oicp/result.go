package oicp

import "fmt"

// StatusCode is the protocol result taxonomy shared by every operation.
type StatusCode string

const (
	StatusCodeSuccess             StatusCode = "000"
	StatusCodeSystemError         StatusCode = "001"
	StatusCodeDataError           StatusCode = "009"
	StatusCodeUnauthorized        StatusCode = "017"
	StatusCodeServiceNotAvailable StatusCode = "021"
	StatusCodeRequestCancelled    StatusCode = "022"
	StatusCodeInvalidRequest      StatusCode = "023"
)

// StatusBlock is the wire form of a protocol status code.
type StatusBlock struct {
	Code           StatusCode `json:"Code"`
	Description    string     `json:"Description,omitempty"`
	AdditionalInfo string     `json:"AdditionalInfo,omitempty"`
}

// Acknowledgement is the generic response body of fire-and-forget operations.
type Acknowledgement struct {
	Result              bool                `json:"Result"`
	StatusCode          StatusBlock         `json:"StatusCode"`
	SessionID           SessionID           `json:"SessionID,omitempty"`
	CPOPartnerSessionID CPOPartnerSessionID `json:"CPOPartnerSessionID,omitempty"`
	EMPPartnerSessionID EMPPartnerSessionID `json:"EMPPartnerSessionID,omitempty"`
}

// NewAcknowledgement builds an acknowledgement for the given status.
func NewAcknowledgement(code StatusCode, description string) Acknowledgement {
	return Acknowledgement{
		Result:     code == StatusCodeSuccess,
		StatusCode: StatusBlock{Code: code, Description: description},
	}
}

// ValidationError names one field that failed local validation.
type ValidationError struct {
	Field   string `json:"Field"`
	Message string `json:"Message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeFailed
	outcomeBadRequest
)

// OperationResult wraps exactly one of three outcomes for a protocol
// operation: success with a payload, failure with a best-effort payload, or a
// bad request rejected by local validation before any network call.
type OperationResult[T any] struct {
	Request          any
	Result           T
	ProcessID        string
	ValidationErrors []ValidationError

	kind outcomeKind
}

// Success wraps a successful result.
func Success[T any](request any, result T, processID string) OperationResult[T] {
	return OperationResult[T]{Request: request, Result: result, ProcessID: processID, kind: outcomeSuccess}
}

// Failed wraps a partner-side rejection; result still carries the typed
// best-effort payload, e.g. an acknowledgement with the partner status code.
func Failed[T any](request any, result T, processID string) OperationResult[T] {
	return OperationResult[T]{Request: request, Result: result, ProcessID: processID, kind: outcomeFailed}
}

// BadRequest wraps a local validation rejection. The error list must be
// non-empty; Result stays the zero value.
func BadRequest[T any](request any, errs []ValidationError, processID string) OperationResult[T] {
	if len(errs) == 0 {
		errs = []ValidationError{{Field: "request", Message: "rejected by local validation"}}
	}
	return OperationResult[T]{Request: request, ProcessID: processID, ValidationErrors: errs, kind: outcomeBadRequest}
}

// IsSuccess reports whether the success constructor was used.
func (r OperationResult[T]) IsSuccess() bool { return r.kind == outcomeSuccess }

// IsBadRequest reports whether local validation rejected the request.
func (r OperationResult[T]) IsBadRequest() bool { return r.kind == outcomeBadRequest }
