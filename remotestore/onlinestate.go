package remotestore

import (
	log "github.com/sirupsen/logrus"

	"github.com/docsync/remotestore/internal/notify"
)

// onlineStateTracker implements C2: the online-state machine. It
// holds the current OnlineState plus a consecutive-failure counter,
// and notifies a delegate only when the observable state actually
// changes. The current state is also published through a notify.Var
// so that a host can await a transition (e.g. in a test, or to
// resolve a pending get() with cached data per §4.1) without having
// to install its own OnlineStateDelegate.
type onlineStateTracker struct {
	cfg       *Config
	state     OnlineState
	failures  int
	delegate  OnlineStateDelegate
	published notify.Var[OnlineState]
}

func newOnlineStateTracker(cfg *Config) *onlineStateTracker {
	t := &onlineStateTracker{cfg: cfg, state: OnlineStateUnknown}
	t.published.Set(OnlineStateUnknown)
	return t
}

// setDelegate attaches (or detaches, with nil) the delegate that will
// be notified of future transitions. Shutdown detaches it.
func (t *onlineStateTracker) setDelegate(d OnlineStateDelegate) {
	t.delegate = d
}

func (t *onlineStateTracker) current() OnlineState { return t.state }

// handleMessageReceived records that the server sent something on the
// watch stream, which always means the stream is healthy.
func (t *onlineStateTracker) handleMessageReceived() {
	t.failures = 0
	t.transitionTo(OnlineStateHealthy)
}

// handleStreamClose is called when the watch stream closes and no
// restart follows (for instance because no listens remain active), and
// by enable_network. It resets the failure counter and moves to
// Unknown.
func (t *onlineStateTracker) handleStreamClose() {
	t.failures = 0
	t.transitionTo(OnlineStateUnknown)
}

// handleStreamFailure is called on a watch-stream closure that is
// followed by a restart. Per §4.1, which branch fires depends on the
// state at the moment of closure: a stream that was Healthy drops straight to Unknown and
// resets the failure counter (the closure itself isn't a failure, it
// just means the stream is no longer proven healthy); a stream that
// was already Unknown or Failed instead accumulates a failure and may
// cross into Failed once the threshold is reached.
func (t *onlineStateTracker) handleStreamFailure() {
	if t.state == OnlineStateHealthy {
		t.failures = 0
		t.transitionTo(OnlineStateUnknown)
		return
	}
	t.failures++
	if t.failures >= t.cfg.failureThreshold {
		t.transitionTo(OnlineStateFailed)
	}
}

// handleExplicitFailure is used by disable_network and shutdown,
// which are always observable as Failed regardless of the failure
// counter.
func (t *onlineStateTracker) handleExplicitFailure() {
	t.transitionTo(OnlineStateFailed)
}

func (t *onlineStateTracker) transitionTo(next OnlineState) {
	if t.state == next {
		return
	}
	t.state = next
	t.published.Set(next)
	onlineStateTransitions.WithLabelValues(next.String()).Inc()
	t.cfg.log.WithFields(log.Fields{
		"state": next,
	}).Debug("online state changed")
	if t.delegate != nil {
		t.delegate.OnWatchStreamOnlineStateChanged(next)
	}
}
