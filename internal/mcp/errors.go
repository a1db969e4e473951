// Package mcp implements the Model Context Protocol server that exposes
// case search, suggestions and index status to AI clients over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
)

// Custom MCP error codes for casesearch.
const (
	// ErrCodeIndexNotBuilt indicates no index snapshot is available.
	ErrCodeIndexNotBuilt = -32001

	// ErrCodeProviderFailed indicates the embedding provider failed.
	ErrCodeProviderFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeBuildInProgress indicates a build holds the index.
	ErrCodeBuildInProgress = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	// Validation lists become one invalid-params error naming every failure.
	var verrs cserrors.ValidationErrors
	if errors.As(err, &verrs) {
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: strings.Join(verrs.Messages(), "; "),
		}
	}

	if ce, ok := cserrors.As(err); ok {
		return mapCaseError(ce)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapCaseError converts a CaseError to an MCPError.
func mapCaseError(ce *cserrors.CaseError) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ce.Message, ce.Suggestion)
	}

	switch ce.Code {
	case cserrors.ErrCodeIndexNotBuilt, cserrors.ErrCodeCorruptSnapshot, cserrors.ErrCodeSnapshotLoad:
		return &MCPError{Code: ErrCodeIndexNotBuilt, Message: message}
	case cserrors.ErrCodeBuildInProgress:
		return &MCPError{Code: ErrCodeBuildInProgress, Message: message}
	case cserrors.ErrCodeProviderTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch ce.Category {
	case cserrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case cserrors.CategoryProvider:
		return &MCPError{Code: ErrCodeProviderFailed, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
