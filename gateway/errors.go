package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the gateway's recoverable/terminal failure modes.
var (
	// ErrMissingCredential indicates no API key was supplied and none could
	// be obtained from the rotating key provider.
	ErrMissingCredential = errors.New("missing provider credential\n\n" +
		"Fix:\n" +
		"  1. Pass Request.APIKey explicitly\n" +
		"  2. Or configure a RotatingKeyProvider on the Gateway\n" +
		"  3. Verify the target provider is the one you intended (model id → provider resolution)")

	// ErrUnknownProvider indicates the model id could not be resolved to a
	// registered provider, even via regex fallback.
	ErrUnknownProvider = errors.New("model id did not resolve to a known provider")

	// ErrIterationCap indicates the tool-call orchestrator hit MaxIterations
	// without the model producing a final, tool-free response.
	ErrIterationCap = errors.New("tool-call loop reached its iteration cap")

	// ErrDuplicateToolCall indicates the same (name, arguments) signature was
	// observed twice within one request, and the repeat was skipped.
	ErrDuplicateToolCall = errors.New("duplicate tool call signature skipped")

	// ErrUnsupportedCombination indicates the caller asked for a
	// provider/feature combination that is not valid on the wire (e.g.
	// native structured output together with tools on a backend that
	// rejects the combination).
	ErrUnsupportedCombination = errors.New("unsupported request: feature combination not valid for this provider")
)

// ProviderError wraps a transport or API failure from a provider HTTP call.
// It always carries whatever Timing had accumulated up to the failure, so
// callers can bill the partial work per spec's propagation policy.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Timing     Timing
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: http %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError, stamping the elapsed Timing so it
// travels with the error back to the caller.
func NewProviderError(provider string, statusCode int, body string, start time.Time, err error) *ProviderError {
	now := time.Now()
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Body:       body,
		Err:        err,
		Timing: Timing{
			StartTime: start,
			EndTime:   now,
			Duration:  now.Sub(start),
		},
	}
}

// ToolError is the payload fed back to the model when a tool execution
// fails; it is never fatal to the orchestrator (spec §7).
type ToolError struct {
	Message string `json:"message"`
	Tool    string `json:"tool"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// IsIterationCap reports whether err is (or wraps) ErrIterationCap.
func IsIterationCap(err error) bool { return errors.Is(err, ErrIterationCap) }

// IsMissingCredential reports whether err is (or wraps) ErrMissingCredential.
func IsMissingCredential(err error) bool { return errors.Is(err, ErrMissingCredential) }
