package remotestore

import (
	"github.com/google/wire"

	"github.com/docsync/remotestore/internal/executor"
)

// Set is used by Wire to assemble a Store from its collaborators.
var Set = wire.NewSet(
	ProvideConfig,
	ProvideExecutor,
	ProvideOnlineStateTracker,
	ProvideStore,
)

// ProvideConfig is called by Wire to build a Config from a caller's
// Options.
func ProvideConfig(opts []Option) *Config {
	return newConfig(opts)
}

// ProvideExecutor is called by Wire to start the single cooperative
// goroutine a Store runs its state machine on.
func ProvideExecutor() (*executor.Executor, func()) {
	exec := executor.New()
	return exec, exec.Stop
}

// ProvideOnlineStateTracker is called by Wire to build C2 ahead of
// the facade that owns it.
func ProvideOnlineStateTracker(cfg *Config) *onlineStateTracker {
	return newOnlineStateTracker(cfg)
}

// ProvideStore is called by Wire to assemble the facade (C5) from its
// already-provided pieces.
func ProvideStore(
	cfg *Config,
	exec *executor.Executor,
	online *onlineStateTracker,
	localStore LocalStore,
	datastore Datastore,
	syncEngine SyncEngine,
) *Store {
	return &Store{
		cfg:                    cfg,
		localStore:             localStore,
		datastore:              datastore,
		syncEngine:             syncEngine,
		exec:                   exec,
		online:                 online,
		listenTargets:          make(map[TargetID]QueryData),
		pendingTargetResponses: make(map[TargetID]int),
		lastBatchSeen:          UnknownBatchID,
	}
}
