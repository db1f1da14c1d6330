package embed

import (
	"context"
	"errors"
	"strings"

	"github.com/hollowbrook/kbflow/core"
)

// classify maps a provider error to a retry class. The provider client
// does not expose typed errors, so this goes by status codes and
// phrases in the message. Anything unrecognized is treated as transient
// because the upsert is idempotent and a wasted retry is cheaper than a
// wrongly dropped document.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "unexpected eof"):
		return core.Transient(err)
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "context length"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "404"):
		return core.Permanent(err)
	}
	return core.Transient(err)
}
