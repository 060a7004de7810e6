// Package remotestoretest provides in-memory fakes for the four
// external collaborators of remotestore.Store (LocalStore, Datastore,
// WatchStream, WriteStream), plus a recording SyncEngine, so the core
// can be exercised without a real transport or persistence layer.
package remotestoretest

import (
	"sync"

	"github.com/docsync/remotestore"
	"github.com/docsync/remotestore/internal/hlc"
)

// Fixture bundles one of each fake collaborator, the way the
// teacher's sinktest fixtures bundle a complete set of
// database-backed services for a test.
type Fixture struct {
	LocalStore *LocalStore
	Datastore  *Datastore
	SyncEngine *SyncEngine
}

// NewFixture builds a ready-to-use Fixture.
func NewFixture() *Fixture {
	return &Fixture{
		LocalStore: NewLocalStore(),
		Datastore:  NewDatastore(),
		SyncEngine: NewSyncEngine(),
	}
}

// LocalStore is an in-memory LocalStore.
type LocalStore struct {
	mu sync.Mutex

	batches             []remotestore.MutationBatch
	remoteKeys          map[remotestore.TargetID]map[remotestore.DocumentKey]bool
	lastSnapshotVersion hlc.Time
	streamToken         []byte
}

// NewLocalStore builds an empty LocalStore fake.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		remoteKeys: make(map[remotestore.TargetID]map[remotestore.DocumentKey]bool),
	}
}

var _ remotestore.LocalStore = (*LocalStore)(nil)

// EnqueueBatch appends a batch the store will later hand out in
// BatchID order, the way a real local store's outbox would.
func (l *LocalStore) EnqueueBatch(batch remotestore.MutationBatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, batch)
}

// NextMutationBatchAfter implements remotestore.LocalStore.
func (l *LocalStore) NextMutationBatchAfter(after remotestore.BatchID) (remotestore.MutationBatch, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var next remotestore.MutationBatch
	found := false
	for _, b := range l.batches {
		if b.BatchID > after && (!found || b.BatchID < next.BatchID) {
			next, found = b, true
		}
	}
	return next, found
}

// SetRemoteDocumentKeys seeds the tracked remote keys for a target.
func (l *LocalStore) SetRemoteDocumentKeys(target remotestore.TargetID, keys map[remotestore.DocumentKey]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteKeys[target] = keys
}

// RemoteDocumentKeys implements remotestore.LocalStore.
func (l *LocalStore) RemoteDocumentKeys(target remotestore.TargetID) map[remotestore.DocumentKey]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteKeys[target]
}

// SetLastRemoteSnapshotVersion sets the version LastRemoteSnapshotVersion
// will report.
func (l *LocalStore) SetLastRemoteSnapshotVersion(v hlc.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSnapshotVersion = v
}

// LastRemoteSnapshotVersion implements remotestore.LocalStore.
func (l *LocalStore) LastRemoteSnapshotVersion() hlc.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSnapshotVersion
}

// LastStreamToken implements remotestore.LocalStore.
func (l *LocalStore) LastStreamToken() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streamToken
}

// SetLastStreamToken implements remotestore.LocalStore.
func (l *LocalStore) SetLastStreamToken(token []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streamToken = token
}
