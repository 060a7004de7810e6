package remotestore

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/docsync/remotestore/internal/executor"
)

// Store is the remote-store facade (C5): it owns the listen-target
// table, the pending-writes queue, and the two stream handles, and it
// orchestrates enable/disable/user-change lifecycle transitions. It
// also implements WatchStreamDelegate and WriteStreamDelegate so that
// stream callbacks have a single, serialized entry point.
//
// Every exported method funnels through exec so that, regardless of
// which goroutine calls in (a user goroutine, or a stream's own
// delivery goroutine), the body runs atomically with respect to every
// other Store method.
type Store struct {
	cfg *Config

	localStore LocalStore
	datastore  Datastore
	syncEngine SyncEngine

	exec *executor.Executor

	online *onlineStateTracker

	// Watch subsystem state (C3), owned exclusively by the executor
	// goroutine.
	listenTargets          map[TargetID]QueryData
	pendingTargetResponses map[TargetID]int
	accumulatedChanges     []WatchChange
	watchStream            WatchStream

	// Write subsystem state (C4).
	pendingWrites       []MutationBatch
	lastBatchSeen       BatchID
	writeStream         WriteStream
	writeStreamOpenTime time.Time
}

// TransactionFactory is implemented by a Datastore that can hand out
// transactions. Transactions run outside the streams and are not part
// of this core (§4.6); the interface is optional, mirroring how the
// teacher probes a delegate for auxiliary capabilities (see
// logical.Lessor in the chaos wrapper).
type TransactionFactory interface {
	NewTransaction() Transaction
}

// Transaction is an opaque handle bound to the underlying datastore.
type Transaction interface{}

var (
	_ WatchStreamDelegate = (*Store)(nil)
	_ WriteStreamDelegate = (*Store)(nil)
)

// New constructs a Store bound to the given collaborators. The store
// is idle (network disabled) until Start or EnableNetwork is called.
func New(localStore LocalStore, datastore Datastore, syncEngine SyncEngine, opts ...Option) *Store {
	cfg := newConfig(opts)
	return &Store{
		cfg:                    cfg,
		localStore:             localStore,
		datastore:              datastore,
		syncEngine:             syncEngine,
		exec:                   executor.New(),
		online:                 newOnlineStateTracker(cfg),
		listenTargets:          make(map[TargetID]QueryData),
		pendingTargetResponses: make(map[TargetID]int),
		lastBatchSeen:          UnknownBatchID,
	}
}

// SetOnlineStateDelegate attaches the delegate notified of online
// state transitions. Passing nil detaches it.
func (s *Store) SetOnlineStateDelegate(d OnlineStateDelegate) {
	s.exec.Do(func() { s.online.setDelegate(d) })
}

// OnlineState returns the current online state.
func (s *Store) OnlineState() OnlineState {
	var state OnlineState
	s.exec.Do(func() { state = s.online.current() })
	return state
}

// WatchOnlineState returns the current online state along with a
// channel that is closed the next time it changes, the way the
// teacher's resolved-timestamp watchers poll a notify.Var instead of
// registering a one-shot delegate. Unlike OnlineStateDelegate, a
// channel obtained before Shutdown is still closed by the Failed
// transition of Shutdown's implicit disable: it is a plain broadcast
// variable, not a callback. WatchOnlineState itself panics once
// Shutdown has stopped the executor.
func (s *Store) WatchOnlineState() (OnlineState, <-chan struct{}) {
	var state OnlineState
	var wakeup <-chan struct{}
	s.exec.Do(func() { state, wakeup = s.online.published.Get() })
	return state, wakeup
}

func (s *Store) networkEnabled() bool { return s.watchStream != nil }

// Start is equivalent to EnableNetwork.
func (s *Store) Start() { s.EnableNetwork() }

// EnableNetwork creates fresh watch and write streams from the
// datastore and begins filling the write pipeline. Its precondition
// is that both streams are currently absent.
func (s *Store) EnableNetwork() {
	s.exec.Do(s.enableNetworkLocked)
}

func (s *Store) enableNetworkLocked() {
	if s.networkEnabled() {
		assertf("remotestore: EnableNetwork called while network already enabled")
	}

	s.watchStream = s.datastore.CreateWatchStream()
	s.writeStream = s.datastore.CreateWriteStream()

	s.writeStream.LoadStreamToken(s.localStore.LastStreamToken())

	if s.shouldStartWatchStream() {
		s.watchStream.Start(s)
	}

	// The write stream starts lazily: fillWritePipeline's commitBatch
	// calls only start it once a batch is actually queued (§4.5's
	// should_start_write_stream), not unconditionally here.
	s.fillWritePipeline()
	s.online.handleStreamClose()
	s.cfg.log.Debug("network enabled")
}

// DisableNetwork stops both streams synchronously (no further
// callbacks will arrive) and clears watch/write transient state.
func (s *Store) DisableNetwork() {
	s.exec.Do(s.disableNetworkLocked)
}

func (s *Store) disableNetworkLocked() {
	s.online.handleExplicitFailure()

	if s.watchStream != nil {
		s.watchStream.Stop()
	}
	if s.writeStream != nil {
		s.writeStream.Stop()
	}

	s.cleanupWatchState()
	s.pendingWrites = nil

	s.watchStream = nil
	s.writeStream = nil

	s.cfg.log.Debug("network disabled")
}

// Shutdown detaches the online-state delegate and disables the
// network if it is currently enabled. After Shutdown returns, no
// delegate method will be invoked again.
func (s *Store) Shutdown() {
	s.exec.Do(func() {
		s.online.setDelegate(nil)
		if s.networkEnabled() {
			s.disableNetworkLocked()
		}
	})
	s.exec.Stop()
}

// UserChanged discards all per-user state (pending writes,
// last_batch_seen) and restarts the network so the pipeline refills
// from the new user's mutations.
func (s *Store) UserChanged() {
	s.exec.Do(func() {
		s.disableNetworkLocked()
		s.lastBatchSeen = UnknownBatchID
		s.enableNetworkLocked()
	})
}

// Transaction returns a new transaction bound to the underlying
// datastore.
func (s *Store) Transaction() Transaction {
	var tx Transaction
	s.exec.Do(func() {
		tf, ok := s.datastore.(TransactionFactory)
		if !ok {
			assertf("remotestore: datastore does not support transactions")
		}
		tx = tf.NewTransaction()
	})
	return tx
}

// Listen adds target to the listen-target table and, depending on
// stream state, either triggers a stream start or emits a watch
// request for it immediately.
func (s *Store) Listen(query QueryData) {
	s.exec.Do(func() { s.listen(query) })
}

// Unlisten removes target from the listen-target table, emitting an
// unwatch request if the stream is open.
func (s *Store) Unlisten(target TargetID) {
	s.exec.Do(func() { s.unlisten(target) })
}

// Write accepts a fresh mutation batch from the local store,
// typically called after NextMutationBatchAfter reports one. Most
// callers instead rely on fillWritePipeline pulling batches on their
// own; Write exists for hosts that push batches proactively.
func (s *Store) Write(batch MutationBatch) {
	s.exec.Do(func() { s.commitBatch(batch) })
}

func (s *Store) logWith(fields log.Fields) *log.Entry {
	return s.cfg.log.WithFields(fields)
}
