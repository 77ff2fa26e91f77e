package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shadansa24/Inventory-app/internal/data"
	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/llm"
)

// UserMessage turns an error from loading or asking into the notice shown
// in the browser. Nothing here is fatal to the page.
func UserMessage(err error) string {
	var (
		loadErr  *inventory.DataLoadError
		validErr *inventory.DataValidationError
		authErr  *llm.AuthError
		apiErr   *llm.ApiError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validErr):
		return "Inventory data is invalid: " + validErr.Error()
	case errors.As(err, &loadErr):
		return "Could not load inventory data: " + loadErr.Error()
	case errors.As(err, &authErr):
		if authErr.StatusCode != 0 {
			return fmt.Sprintf("The assistant is not configured correctly: the provider rejected the API key (HTTP %d). Check LLM_API_KEY.", authErr.StatusCode)
		}
		return "The assistant is not configured. Set LLM_API_KEY (or OPENAI_API_KEY) and restart the dashboard."
	case errors.As(err, &apiErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return "The assistant is unavailable right now: the request timed out. Please try again."
		}
		if apiErr.StatusCode != 0 {
			return fmt.Sprintf("The assistant is unavailable right now (HTTP %d). Please try again in a moment.", apiErr.StatusCode)
		}
		return "The assistant is unavailable right now. Please try again in a moment."
	default:
		return "Something went wrong: " + err.Error()
	}
}

// auditStatus classifies a chat outcome for the audit table.
func auditStatus(err error) string {
	var (
		authErr *llm.AuthError
		apiErr  *llm.ApiError
	)
	switch {
	case err == nil:
		return data.StatusOK
	case errors.As(err, &authErr):
		return data.StatusAuthError
	case errors.As(err, &apiErr):
		return data.StatusAPIError
	default:
		return data.StatusDataError
	}
}
