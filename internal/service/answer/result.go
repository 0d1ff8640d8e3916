package answer

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnreachable covers connection failures and timeouts.
	ErrUnreachable = errors.New("unreachable")
	// ErrMalformed means the reply carried no usable answer text.
	ErrMalformed = errors.New("malformed reply")
	// ErrRecommendation wraps every failure of the recommendation call.
	ErrRecommendation = errors.New("recommendation failed")
)

// StatusError reports a non-2xx reply from the answer service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

// Result is the normalized outcome of one answer-service call. Tool is nil
// for a plain generative answer. Err is set when the call failed; Text is
// then empty.
type Result struct {
	Text string
	Tool *Tool
	Err  error
}

// Tool describes an answer produced by a named capability.
type Tool struct {
	Name    string
	Payload Payload
}

// Payload is the structured part of a tool answer. Absent fields stay nil.
type Payload struct {
	LoginRequired    *bool
	RelatedQuestions json.RawMessage
	CardList         json.RawMessage
}

// Plain builds a plain-answer result.
func Plain(text string) Result {
	return Result{Text: text}
}

// Failed builds an error result.
func Failed(err error) Result {
	return Result{Err: err}
}

// LoginRequired reports whether a tool answer asked the user to log in.
func (r Result) LoginRequired() bool {
	return r.Tool != nil && r.Tool.Payload.LoginRequired != nil && *r.Tool.Payload.LoginRequired
}

// FallbackText turns a failed call into a message that can be shown to the
// user as a normal bot reply.
func FallbackText(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Sorry, the answer service returned an error (HTTP %d). Please try again.", statusErr.Code)
	case errors.Is(err, ErrUnreachable):
		return "Sorry, I couldn't reach the answer service. Please try again in a moment."
	case errors.Is(err, ErrMalformed):
		return "Sorry, the answer service sent a reply I couldn't read. Please try again."
	default:
		return "Sorry, something went wrong while preparing an answer. Please try again."
	}
}
