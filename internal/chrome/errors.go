package chrome

import "errors"

// Error taxonomy for the session layer. Callers classify with errors.Is;
// richer context is layered on with fmt.Errorf("%w: ...").
var (
	// ErrExecutableNotFound means no Chrome binary was configured and none
	// was found in the well-known install locations.
	ErrExecutableNotFound = errors.New("chrome executable not found")

	// ErrLaunchFailed means the browser process exited right after spawn.
	ErrLaunchFailed = errors.New("chrome failed to launch")

	// ErrDevToolsUnavailable means the process is running but its debugging
	// endpoint never answered within the retry budget.
	ErrDevToolsUnavailable = errors.New("devtools endpoint unavailable")

	// ErrNotStarted is returned by session operations before Start succeeds
	// or after Stop.
	ErrNotStarted = errors.New("session not started")

	// ErrNavigationFailed carries the errorText of a failed Page.navigate.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrScriptException means the evaluated expression threw in the page.
	// It is scoped to the one call; the session stays usable.
	ErrScriptException = errors.New("script exception")

	// ErrDOMUnavailable means a DOM-domain call failed at the protocol level.
	ErrDOMUnavailable = errors.New("dom unavailable")

	// ErrDetached means the tab was lost out from under the session. It is
	// terminal: every later call on the same session fails the same way and
	// the caller must build a new session.
	ErrDetached = errors.New("tab detached")

	// ErrTimeout is produced by the retry combinator when raise-on-timeout
	// is requested.
	ErrTimeout = errors.New("operation timed out")
)
