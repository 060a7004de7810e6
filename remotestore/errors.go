package remotestore

import "github.com/pkg/errors"

// Sentinel errors surfaced to collaborators or returned from
// constructors. Programmer errors (duplicate listen, unlisten of an
// unknown target, enabling an already-enabled network, ...) are
// assertion failures per §7.6 and are raised with assertf instead of
// being returned, since no caller is expected to recover from them.
var (
	// ErrExistenceFilterProtocolViolation is raised when a
	// document-query existence filter reports a count other than 0
	// or 1.
	ErrExistenceFilterProtocolViolation = errors.New("existence filter protocol violation")
)

// assertf panics with a formatted message. It is used for conditions
// the spec classifies as programmer errors: violations the caller is
// responsible for never triggering, not conditions the remote store
// can recover from.
func assertf(format string, args ...interface{}) {
	panic(errors.Errorf(format, args...))
}
