package remotestoretest

import (
	"sync"

	"github.com/docsync/remotestore"
)

// SyncEngine is a recording fake that lets tests assert on what the
// remote store handed it.
type SyncEngine struct {
	mu sync.Mutex

	Events           []remotestore.RemoteEvent
	RejectedListens  []RejectedListen
	SuccessfulWrites []remotestore.MutationBatchResult
	RejectedWrites   []RejectedWrite
}

// RejectedListen records a call to RejectListen.
type RejectedListen struct {
	Target remotestore.TargetID
	Err    error
}

// RejectedWrite records a call to RejectFailedWrite.
type RejectedWrite struct {
	BatchID remotestore.BatchID
	Err     error
}

// NewSyncEngine builds an empty SyncEngine fake.
func NewSyncEngine() *SyncEngine {
	return &SyncEngine{}
}

var _ remotestore.SyncEngine = (*SyncEngine)(nil)

// ApplyRemoteEvent implements remotestore.SyncEngine.
func (s *SyncEngine) ApplyRemoteEvent(event remotestore.RemoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
}

// RejectListen implements remotestore.SyncEngine.
func (s *SyncEngine) RejectListen(target remotestore.TargetID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RejectedListens = append(s.RejectedListens, RejectedListen{target, err})
}

// ApplySuccessfulWrite implements remotestore.SyncEngine.
func (s *SyncEngine) ApplySuccessfulWrite(result remotestore.MutationBatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SuccessfulWrites = append(s.SuccessfulWrites, result)
}

// RejectFailedWrite implements remotestore.SyncEngine.
func (s *SyncEngine) RejectFailedWrite(batchID remotestore.BatchID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RejectedWrites = append(s.RejectedWrites, RejectedWrite{batchID, err})
}

// LastEvent returns the most recently applied RemoteEvent, or the
// zero value plus false if none has been applied.
func (s *SyncEngine) LastEvent() (remotestore.RemoteEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Events) == 0 {
		return remotestore.RemoteEvent{}, false
	}
	return s.Events[len(s.Events)-1], true
}
