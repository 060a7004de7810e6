package remotestore

import (
	"errors"
	"testing"

	"github.com/docsync/remotestore/internal/hlc"
	"github.com/docsync/remotestore/remotestoretest"
)

func newTestStore(fx *remotestoretest.Fixture) *Store {
	return New(fx.LocalStore, fx.Datastore, fx.SyncEngine)
}

// TestS1ListenOpenAddedDocumentCurrent walks the scenario from start to
// a single consistent RemoteEvent: a listen is registered, the stream
// opens and re-sends the watch request, the target is acknowledged,
// a document arrives, and the target goes current carrying a resume
// token -- all three changes folding into one flush because only the
// closing message carries a real snapshot version.
func TestS1ListenOpenAddedDocumentCurrent(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/1"}, TargetID: 1})

	ws := fx.Datastore.LatestWatchStream()
	if ws == nil {
		t.Fatal("expected a watch stream to have been created")
	}
	ws.Open()

	if len(ws.Watched) != 1 || ws.Watched[0].TargetID != 1 {
		t.Fatalf("want a single re-issued watch request for target 1, got %v", ws.Watched)
	}

	ws.Change(WatchChange{
		Kind:   WatchChangeKindTarget,
		Target: TargetChange{State: TargetChangeAdded, TargetIDs: []TargetID{1}},
	}, hlc.Zero())

	ws.Change(WatchChange{
		Kind: WatchChangeKindDocument,
		Document: DocumentChange{
			Document:      Document{Key: "docs/1", Data: []byte("hello")},
			UpdatedTarget: []TargetID{1},
		},
	}, hlc.Zero())

	ws.Change(WatchChange{
		Kind: WatchChangeKindTarget,
		Target: TargetChange{
			State: TargetChangeCurrent, TargetIDs: []TargetID{1}, ResumeToken: []byte("t1"),
		},
	}, hlc.New(5, 0))

	event, ok := fx.SyncEngine.LastEvent()
	if !ok {
		t.Fatal("expected exactly one RemoteEvent to have been applied")
	}
	if len(fx.SyncEngine.Events) != 1 {
		t.Fatalf("want exactly one RemoteEvent forwarded, got %d", len(fx.SyncEngine.Events))
	}
	if got := event.TargetChanges[1]; got != TargetChangeCurrent {
		t.Fatalf("want target 1 Current, got %v", got)
	}
	if string(event.TargetTokens[1]) != "t1" {
		t.Fatalf("want resume token t1, got %q", event.TargetTokens[1])
	}
	doc, ok := event.DocumentUpdates["docs/1"]
	if !ok || string(doc.Data) != "hello" {
		t.Fatalf("want docs/1 present with data hello, got %+v ok=%v", doc, ok)
	}
}

// TestS3ExistenceFilterMismatchForcesRelisten checks that a collection
// query whose server-reported count disagrees with the locally tracked
// key count triggers a mismatch flag and a forced re-listen, as in
// scenario S3.
func TestS3ExistenceFilterMismatchForcesRelisten(t *testing.T) {
	fx := remotestoretest.NewFixture()
	fx.LocalStore.SetRemoteDocumentKeys(1, map[DocumentKey]bool{"docs/a": true, "docs/b": true})
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Listen(QueryData{Query: Query{Kind: QueryKindCollection, Path: "docs"}, TargetID: 1})

	ws := fx.Datastore.LatestWatchStream()
	ws.Open()

	ws.Change(WatchChange{
		Kind:   WatchChangeKindTarget,
		Target: TargetChange{State: TargetChangeCurrent, TargetIDs: []TargetID{1}},
	}, hlc.Zero())

	ws.Change(WatchChange{
		Kind:            WatchChangeKindExistenceFilter,
		ExistenceFilter: ExistenceFilterChange{TargetID: 1, Filter: ExistenceFilter{Count: 5}},
	}, hlc.New(1, 0))

	event, _ := fx.SyncEngine.LastEvent()
	if !event.HasExistenceFilterMismatch(1) {
		t.Fatal("want the existence filter mismatch flagged on the event")
	}

	if len(ws.Unwatched) != 1 || ws.Unwatched[0] != TargetID(1) {
		t.Fatalf("want target 1 unwatched to force a re-listen, got %v", ws.Unwatched)
	}
	foundMismatchPurpose := false
	for _, qd := range ws.Watched {
		if qd.TargetID == 1 && qd.Purpose == PurposeExistenceFilterMismatch {
			foundMismatchPurpose = true
		}
	}
	if !foundMismatchPurpose {
		t.Fatalf("want a re-listen watch request tagged PurposeExistenceFilterMismatch, got %v", ws.Watched)
	}
}

// TestDocumentExistenceFilterProtocolViolationRejectsListen checks
// that a document-query existence filter reporting a count other than
// 0 or 1 is surfaced to the sync engine as ErrExistenceFilterProtocolViolation
// and the target is dropped, rather than only logged.
func TestDocumentExistenceFilterProtocolViolationRejectsListen(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/1"}, TargetID: 1})

	ws := fx.Datastore.LatestWatchStream()
	ws.Open()

	ws.Change(WatchChange{
		Kind:            WatchChangeKindExistenceFilter,
		ExistenceFilter: ExistenceFilterChange{TargetID: 1, Filter: ExistenceFilter{Count: 2}},
	}, hlc.New(1, 0))

	if len(fx.SyncEngine.RejectedListens) != 1 {
		t.Fatalf("want the protocol violation surfaced as a rejected listen, got %d", len(fx.SyncEngine.RejectedListens))
	}
	rejection := fx.SyncEngine.RejectedListens[0]
	if rejection.Target != 1 || !errors.Is(rejection.Err, ErrExistenceFilterProtocolViolation) {
		t.Fatalf("unexpected rejection recorded: %+v", rejection)
	}
	if _, active := store.listenTargets[1]; active {
		t.Fatal("want target 1 removed from the listen table")
	}
}

// TestOpenQuestionTargetErrorBypassesAccumulation exercises the design
// note's resolution: a target error arriving mid-accumulation is
// surfaced immediately and does not wait for a later flush.
func TestOpenQuestionTargetErrorBypassesAccumulation(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/1"}, TargetID: 1})

	ws := fx.Datastore.LatestWatchStream()
	ws.Open()

	// A document change accumulates with no version yet (server hasn't
	// closed out the snapshot).
	ws.Change(WatchChange{
		Kind: WatchChangeKindDocument,
		Document: DocumentChange{
			Document:      Document{Key: "docs/1", Data: []byte("v1")},
			UpdatedTarget: []TargetID{1},
		},
	}, hlc.Zero())

	cause := errors.New("permission denied")
	ws.Change(WatchChange{
		Kind: WatchChangeKindTarget,
		Target: TargetChange{
			State: TargetChangeRemoved, TargetIDs: []TargetID{1}, Cause: cause,
		},
	}, hlc.Zero())

	if len(fx.SyncEngine.RejectedListens) != 1 {
		t.Fatalf("want the target error surfaced immediately, got %d rejections", len(fx.SyncEngine.RejectedListens))
	}
	if fx.SyncEngine.RejectedListens[0].Target != 1 || fx.SyncEngine.RejectedListens[0].Err != cause {
		t.Fatalf("unexpected rejection recorded: %+v", fx.SyncEngine.RejectedListens[0])
	}
	if len(fx.SyncEngine.Events) != 0 {
		t.Fatalf("the pending document change must not have been flushed as a RemoteEvent, got %d", len(fx.SyncEngine.Events))
	}
}

// TestHealthyStreamCloseDropsToUnknownBeforeAnyRestart checks that a
// single closure of a stream that was Healthy transitions the online
// state to Unknown immediately, per §4.1. A closure from Healthy lands
// on Unknown on both branches of onWatchStreamClose (handleStreamFailure
// when a restart follows, handleStreamClose when none does), so a
// healthy stream's first failure is never silently absorbed into the
// failure counter and only surfaced as Failed after a second
// consecutive closure.
func TestHealthyStreamCloseDropsToUnknownBeforeAnyRestart(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/1"}, TargetID: 1})

	ws := fx.Datastore.LatestWatchStream()
	ws.Open()
	ws.Change(WatchChange{
		Kind:   WatchChangeKindTarget,
		Target: TargetChange{State: TargetChangeAdded, TargetIDs: []TargetID{1}},
	}, hlc.Zero())

	if store.OnlineState() != OnlineStateHealthy {
		t.Fatalf("want Healthy after a message is received, got %s", store.OnlineState())
	}

	var seen []OnlineState
	store.SetOnlineStateDelegate(onlineStateDelegateFunc(func(s OnlineState) {
		seen = append(seen, s)
	}))

	// The fake stream still reports IsStarted after Close, so
	// shouldStartWatchStream is false here and no restart is attempted;
	// either way, a closure from Healthy goes straight to Unknown, it
	// never accumulates toward Failed.
	ws.Close(errors.New("connection reset"))

	if store.OnlineState() != OnlineStateUnknown {
		t.Fatalf("want Unknown immediately after a healthy stream closes once, got %s", store.OnlineState())
	}
	if len(seen) != 1 || seen[0] != OnlineStateUnknown {
		t.Fatalf("want exactly one Unknown notification, got %v", seen)
	}
}

func TestListenThenUnlistenBeforeOpenEmitsNoRequests(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/1"}, TargetID: 1})
	store.Unlisten(1)

	ws := fx.Datastore.LatestWatchStream()
	if len(ws.Watched) != 0 || len(ws.Unwatched) != 0 {
		t.Fatalf("the stream was never open; want no requests emitted, got watched=%v unwatched=%v", ws.Watched, ws.Unwatched)
	}
}

func TestListenAfterOpenEmitsWatchRequestImmediately(t *testing.T) {
	fx := remotestoretest.NewFixture()
	store := newTestStore(fx)

	store.EnableNetwork()
	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/1"}, TargetID: 1})
	ws := fx.Datastore.LatestWatchStream()
	ws.Open()

	store.Listen(QueryData{Query: Query{Kind: QueryKindDocument, Path: "docs/2"}, TargetID: 2})

	found := false
	for _, qd := range ws.Watched {
		if qd.TargetID == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("want an immediate watch request for target 2 once the stream is open, got %v", ws.Watched)
	}
}
