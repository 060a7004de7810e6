package remotestore

import (
	"testing"

	"github.com/docsync/remotestore/remotestoretest"
)

// TestR1ListenUnlistenRoundTrip checks that listening then unlistening
// the same target before the stream opens leaves the bookkeeping
// exactly as it started.
func TestR1ListenUnlistenRoundTrip(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	before := len(store.listenTargets)
	beforePending := len(store.pendingTargetResponses)

	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/1"}, TargetID: 1})
	store.Unlisten(1)

	if len(store.listenTargets) != before {
		t.Fatalf("want listen table restored to %d entries, got %d", before, len(store.listenTargets))
	}
	if len(store.pendingTargetResponses) != beforePending {
		t.Fatalf("want pending-response table restored to %d entries, got %d", beforePending, len(store.pendingTargetResponses))
	}
}

// TestEnableNetworkDoesNotStartWriteStreamWithNothingQueued checks
// that EnableNetwork leaves the write stream unstarted when the local
// store has no mutation batches queued -- the write stream starts
// lazily from commitBatch once a batch actually arrives (§4.5), not
// unconditionally on enable (§4.6).
func TestEnableNetworkDoesNotStartWriteStreamWithNothingQueued(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()

	ws := fx.Datastore.LatestWriteStream()
	if ws.IsStarted() {
		t.Fatal("want the write stream left unstarted with nothing queued")
	}

	fx.LocalStore.EnqueueBatch(batch(1, "a"))
	store.Write(batch(1, "a"))

	if !ws.IsStarted() {
		t.Fatal("want the write stream started once a batch is actually committed")
	}
}

// TestP5NoDelegateCallsBetweenDisableAndEnable checks that no
// online-state notification fires strictly between a disable and the
// following enable, beyond the Failed transition disable itself
// produces.
func TestP5NoDelegateCallsBetweenDisableAndEnable(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)
	store.EnableNetwork()

	var seen []OnlineState
	store.SetOnlineStateDelegate(onlineStateDelegateFunc(func(s OnlineState) {
		seen = append(seen, s)
	}))

	store.DisableNetwork()
	store.EnableNetwork()

	// With no listens, writes, or stream callbacks interleaved, the
	// only notifications possible are the Failed transition disable
	// produces and the Unknown transition enable produces -- nothing
	// stray can have fired while the network sat disabled.
	if len(seen) != 2 || seen[0] != OnlineStateFailed || seen[1] != OnlineStateUnknown {
		t.Fatalf("want exactly [Failed, Unknown] and nothing else, got %v", seen)
	}
}

// TestP6UserChangedResetsPipelineState checks invariant I6: after
// user_changed, last_batch_seen is UNKNOWN and pending_writes is
// empty before any new batch is fetched (the local store here has
// nothing queued, so the pipeline stays empty).
func TestP6UserChangedResetsPipelineState(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Write(batch(1, "a"))
	if store.lastBatchSeen != 1 {
		t.Fatalf("want last_batch_seen == 1 after the initial commit, got %d", store.lastBatchSeen)
	}

	store.UserChanged()

	if store.lastBatchSeen != UnknownBatchID {
		t.Fatalf("want last_batch_seen reset to UNKNOWN, got %d", store.lastBatchSeen)
	}
	if len(store.pendingWrites) != 0 {
		t.Fatalf("want pending_writes empty after user change, got %+v", store.pendingWrites)
	}
}

// TestS6UserChangeRefillsFromNewUser exercises scenario S6 end to end:
// after an initial fill, user_changed clears the pipeline and refills
// from whatever the local store now reports for the new user.
func TestS6UserChangeRefillsFromNewUser(t *testing.T) {
	fx := remotestoretest.NewFixture()
	fx.LocalStore.EnqueueBatch(batch(1, "u1-a"))
	store := newTestStore(fx)

	store.EnableNetwork()
	firstWriteStream := fx.Datastore.LatestWriteStream()
	firstWatchStream := fx.Datastore.LatestWatchStream()

	fx.LocalStore.EnqueueBatch(batch(2, "u2-a"))
	fx.LocalStore.EnqueueBatch(batch(3, "u2-b"))

	store.UserChanged()

	if fx.Datastore.LatestWriteStream() == firstWriteStream {
		t.Fatal("want a fresh write stream created for the new user")
	}
	// enable_network unconditionally creates fresh streams, even with
	// zero listen targets, so user_changed always hands out a new
	// watch stream too.
	if fx.Datastore.LatestWatchStream() == firstWatchStream {
		t.Fatal("want a fresh watch stream created for the new user")
	}

	if store.lastBatchSeen != 3 {
		t.Fatalf("want last_batch_seen advanced to the new user's last batch (3), got %d", store.lastBatchSeen)
	}
	// last_batch_seen resets to UNKNOWN, so the refill pulls every
	// batch the local store reports from scratch -- including u1's,
	// since this fake's queue isn't scoped per user.
	if len(store.pendingWrites) != 3 {
		t.Fatalf("want the pipeline refilled from scratch (3 batches), got %d", len(store.pendingWrites))
	}
}

// TestWatchOnlineStateWakesAcrossEnableDisable checks that
// WatchOnlineState's wakeup channel fires on the Failed/Unknown
// transitions driven by Disable/EnableNetwork, independent of whatever
// OnlineStateDelegate is (or isn't) attached.
func TestWatchOnlineStateWakesAcrossEnableDisable(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)
	store.EnableNetwork()

	state, wakeup := store.WatchOnlineState()
	if state != OnlineStateUnknown {
		t.Fatalf("want Unknown after enable with no stream callbacks, got %s", state)
	}

	store.DisableNetwork()

	select {
	case <-wakeup:
	default:
		t.Fatalf("want wakeup channel closed after DisableNetwork's Failed transition")
	}

	state, _ = store.WatchOnlineState()
	if state != OnlineStateFailed {
		t.Fatalf("want published state Failed after disable, got %s", state)
	}
}

func TestShutdownDetachesDelegateAndDisablesNetwork(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)
	store.EnableNetwork()

	var seen []OnlineState
	store.SetOnlineStateDelegate(onlineStateDelegateFunc(func(s OnlineState) {
		seen = append(seen, s)
	}))

	store.Shutdown()

	if len(seen) != 0 {
		t.Fatalf("want no notification: shutdown detaches the delegate before its implicit disable, got %v", seen)
	}
	if store.networkEnabled() {
		t.Fatal("want the network disabled after shutdown")
	}
}
