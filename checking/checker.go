package checking

import (
	"io"
)

// CheckerResponse is a response returned after verifying a history
//
// Contains the result of checking the history.
type CheckerResponse interface {
	// Create a response.
	//
	// Returns a boolean that is true if no violation was found, false otherwise.
	// Returns a string describing the response.
	// This includes every reported cycle and the operations that justify its edges.
	Response() (bool, string)

	// Export the response as JSON so that it can be consumed by other tools
	Export(w io.Writer) error
}
