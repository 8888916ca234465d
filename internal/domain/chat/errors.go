package chat

import (
	"errors"
	"fmt"
)

// ErrInference marks a failed or malformed chat-completion call. It is never
// absorbed; handlers map it to a 500 response.
var ErrInference = errors.New("AI request failed")

// ErrMalformedResponse is returned by clients when the endpoint answered
// without a usable choice.
var ErrMalformedResponse = errors.New("malformed completion response")

func imageFailurePlaceholder(filename string) string {
	return fmt.Sprintf("[Image analysis failed for %s]", filename)
}

func emptyDescriptionPlaceholder(filename string) string {
	return fmt.Sprintf("[No description returned for %s]", filename)
}
