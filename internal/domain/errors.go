package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidState = fmt.Errorf("invalid state")
	ErrCancelled    = fmt.Errorf("cancelled")
)

// Orchestration errors.
var (
	ErrValidation          = fmt.Errorf("task validation failed")
	ErrUnknownTaskType     = fmt.Errorf("unknown task type")
	ErrUnknownWorkflowType = fmt.Errorf("unknown workflow type")
	ErrUnknownWorkflowID   = fmt.Errorf("unknown workflow id")
	ErrDelegation          = fmt.Errorf("delegation not allowed")
	ErrStepValidation      = fmt.Errorf("step result validation failed")
	ErrConfig              = fmt.Errorf("configuration error")
	ErrTemplate            = fmt.Errorf("prompt template error")
	ErrDecryption          = fmt.Errorf("decryption failed")
)

// Completion errors.
var (
	ErrTokenLimit  = fmt.Errorf("token limit exceeded")
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrModel       = fmt.Errorf("model error")
	ErrAPI         = fmt.Errorf("api error")
	ErrAuthInvalid = fmt.Errorf("authentication failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Router.Delegate")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "workflow", "agent"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// StepValidationError reports a workflow step whose result lacks required keys.
type StepValidationError struct {
	Step    string
	Missing []string
}

func (e *StepValidationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("step %q: %s: empty result", e.Step, ErrStepValidation)
	}
	return fmt.Sprintf("step %q: %s: missing keys [%s]", e.Step, ErrStepValidation, strings.Join(e.Missing, ", "))
}

func (e *StepValidationError) Unwrap() error { return ErrStepValidation }

// TokenLimitError reports a prompt that does not fit the model's token budget.
type TokenLimitError struct {
	Model  string
	Tokens int
	Limit  int
}

func (e *TokenLimitError) Error() string {
	return fmt.Sprintf("%s: prompt has %d tokens, model %s allows %d", ErrTokenLimit, e.Tokens, e.Model, e.Limit)
}

func (e *TokenLimitError) Unwrap() error { return ErrTokenLimit }

// IsRetryableError reports whether err is a transient completion error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrAPI)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeValidation         ErrorCode = "VALIDATION"
	CodeUnknownTaskType    ErrorCode = "UNKNOWN_TASK_TYPE"
	CodeUnknownWorkflow    ErrorCode = "UNKNOWN_WORKFLOW_TYPE"
	CodeUnknownWorkflowID  ErrorCode = "UNKNOWN_WORKFLOW_ID"
	CodeDelegation         ErrorCode = "DELEGATION"
	CodeStepValidation     ErrorCode = "STEP_VALIDATION"
	CodeConfig             ErrorCode = "CONFIG"
	CodeTemplate           ErrorCode = "TEMPLATE"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeTokenLimit         ErrorCode = "TOKEN_LIMIT"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeModel              ErrorCode = "MODEL"
	CodeAPI                ErrorCode = "API"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate     ErrorCode = "AGENT_DUPLICATE"
	CodePromptNotFound     ErrorCode = "PROMPT_NOT_FOUND"
	CodeRoleNotFound       ErrorCode = "ROLE_NOT_FOUND"
	CodeWorkflowMaxRunning ErrorCode = "WORKFLOW_MAX_RUNNING"
	CodeWorkflowTimeout    ErrorCode = "WORKFLOW_TIMEOUT"
	CodeWorkflowState      ErrorCode = "WORKFLOW_STATE"
	CodeHostingNotFound    ErrorCode = "HOSTING_NOT_FOUND"

	// Category error codes. Fallback codes when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidState ErrorCode = "INVALID_STATE"
	CodeCancelled    ErrorCode = "CANCELLED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidState: CodeInvalidState,
	ErrCancelled:    CodeCancelled,

	ErrValidation:          CodeValidation,
	ErrUnknownTaskType:     CodeUnknownTaskType,
	ErrUnknownWorkflowType: CodeUnknownWorkflow,
	ErrUnknownWorkflowID:   CodeUnknownWorkflowID,
	ErrDelegation:          CodeDelegation,
	ErrStepValidation:      CodeStepValidation,
	ErrConfig:              CodeConfig,
	ErrTemplate:            CodeTemplate,
	ErrDecryption:          CodeDecryption,
	ErrTokenLimit:          CodeTokenLimit,
	ErrRateLimit:           CodeRateLimit,
	ErrModel:               CodeModel,
	ErrAPI:                 CodeAPI,
	ErrAuthInvalid:         CodeAuthInvalid,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":   CodeAgentNotFound,
		"prompt":  CodePromptNotFound,
		"hosting": CodeHostingNotFound,
	},
	ErrConfig: {
		"budget": CodeRoleNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrTimeout: {
		"workflow": CodeWorkflowTimeout,
	},
	ErrLimitReached: {
		"workflow": CodeWorkflowMaxRunning,
	},
	ErrInvalidState: {
		"workflow": CodeWorkflowState,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
