package orchestrator

import "fmt"

// Catalogued failure codes. Every classified failure carries one of these;
// the policy engine switches on the code to pick a reaction.
const (
	CodeNoRecord           = "EICP001"
	CodeBadEntryState      = "EICP002"
	CodeExtractFailed      = "EICP003"
	CodeContentMismatch    = "EICP004"
	CodeVerificationFailed = "EICP005"
	CodeInfrastructure     = "EICP006"
	CodeMalformedSpecial   = "EICP007"
	CodeRestartFailed      = "EPGA001"
)

// FlowError is a classified pipeline failure. FileID and State are zero when
// the failure happened before a record was resolved. Anything the flow
// returns that is not a FlowError is unclassified: the worker logs it and
// leaves the message for redelivery.
type FlowError struct {
	Code   string
	FileID int64
	State  string // file state at the moment of failure
	Err    error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *FlowError) Unwrap() error { return e.Err }

func classified(code string, fileID int64, state string, err error) *FlowError {
	return &FlowError{Code: code, FileID: fileID, State: state, Err: err}
}
