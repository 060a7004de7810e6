package remotestore

import "github.com/docsync/remotestore/internal/hlc"

// DocumentKey identifies a single document, independent of any
// particular target.
type DocumentKey string

// Document is an opaque payload; its structure is owned by the sync
// engine and local store, not by the remote store core.
type Document struct {
	Key     DocumentKey
	Data    []byte // nil means the document is known to be deleted
	Version hlc.Time
}

// IsDeleted reports whether this Document represents a deletion.
func (d Document) IsDeleted() bool { return d.Data == nil }

// TargetChangeState describes what a TargetChange asserts about a
// target.
type TargetChangeState int

const (
	// TargetChangeNoChange carries only a resume-token update.
	TargetChangeNoChange TargetChangeState = iota
	// TargetChangeAdded acknowledges an outbound watch request.
	TargetChangeAdded
	// TargetChangeRemoved acknowledges an outbound unwatch request,
	// or reports a server-initiated target error when Cause is set.
	TargetChangeRemoved
	// TargetChangeCurrent marks the target as caught up to the
	// accompanying snapshot version.
	TargetChangeCurrent
	// TargetChangeReset asks the client to discard everything it
	// knows about the listed targets and re-add them from scratch.
	TargetChangeReset
)

// MappingKind distinguishes an additive document-key mapping update
// from one that replaces the tracked set outright.
type MappingKind int

const (
	// MappingNone carries no document-key mapping update.
	MappingNone MappingKind = iota
	// MappingUpdate adds/removes document keys from the tracked set.
	MappingUpdate
	// MappingReset replaces the tracked set outright.
	MappingReset
)

// Mapping is the (possibly absent) document-key update carried by a
// TargetChange.
type Mapping struct {
	Kind    MappingKind
	Added   []DocumentKey
	Removed []DocumentKey // only meaningful for MappingUpdate
}

// TargetChange is one variant of the WatchChange tagged sum: a server
// assertion about the state of one or more targets.
type TargetChange struct {
	State       TargetChangeState
	TargetIDs   []TargetID
	Cause       error // non-nil only for TargetChangeRemoved target errors
	ResumeToken []byte
	Mapping     Mapping
}

// DocumentChange is one variant of the WatchChange tagged sum: an
// update to a single document, scoped to the targets that matched it.
type DocumentChange struct {
	Document      Document
	UpdatedTarget []TargetID
	RemovedTarget []TargetID
}

// ExistenceFilter is the server's assertion of the cardinality of a
// target's current result set.
type ExistenceFilter struct {
	Count int
}

// ExistenceFilterChange is one variant of the WatchChange tagged sum.
type ExistenceFilterChange struct {
	TargetID TargetID
	Filter   ExistenceFilter
}

// WatchChangeKind tags which field of WatchChange is populated.
type WatchChangeKind int

const (
	// WatchChangeKindTarget tags TargetChange.
	WatchChangeKindTarget WatchChangeKind = iota
	// WatchChangeKindDocument tags DocumentChange.
	WatchChangeKindDocument
	// WatchChangeKindExistenceFilter tags ExistenceFilterChange.
	WatchChangeKindExistenceFilter
)

// WatchChange is a tagged sum of the three message shapes the watch
// stream can deliver. Exactly one of the payload fields is valid,
// selected by Kind; callers must switch on Kind rather than on which
// field is non-zero.
type WatchChange struct {
	Kind            WatchChangeKind
	Target          TargetChange
	Document        DocumentChange
	ExistenceFilter ExistenceFilterChange
}

// RemoteEvent is a consistent cut of target/document updates at a
// single snapshot version, ready to be applied by the sync engine.
type RemoteEvent struct {
	SnapshotVersion hlc.Time
	TargetChanges   map[TargetID]TargetChangeState
	TargetTokens    map[TargetID][]byte
	DocumentUpdates map[DocumentKey]Document

	existenceFilterMismatches map[TargetID]bool
}

// OnExistenceFilterMismatch flags that target's remote state as
// having drifted; the sync engine discards what it has cached for it.
func (e *RemoteEvent) OnExistenceFilterMismatch(target TargetID) {
	if e.existenceFilterMismatches == nil {
		e.existenceFilterMismatches = make(map[TargetID]bool)
	}
	e.existenceFilterMismatches[target] = true
}

// HasExistenceFilterMismatch reports whether OnExistenceFilterMismatch
// was called for target.
func (e *RemoteEvent) HasExistenceFilterMismatch(target TargetID) bool {
	return e.existenceFilterMismatches[target]
}

// LocalStore is the persistence collaborator. Its implementation is
// out of scope; only this contract is part of the core.
type LocalStore interface {
	// NextMutationBatchAfter returns the next queued mutation batch
	// whose BatchID is greater than after, or ok=false if there is
	// none. The result is monotone in after.
	NextMutationBatchAfter(after BatchID) (batch MutationBatch, ok bool)
	// RemoteDocumentKeys returns the document keys currently tracked
	// as matching the given target, per the local view.
	RemoteDocumentKeys(target TargetID) map[DocumentKey]bool
	// LastRemoteSnapshotVersion is the snapshot version of the most
	// recently applied remote event.
	LastRemoteSnapshotVersion() hlc.Time
	// LastStreamToken returns the persisted write-stream token, if
	// any.
	LastStreamToken() []byte
	// SetLastStreamToken persists the write-stream token verbatim. A
	// nil token clears it.
	SetLastStreamToken(token []byte)
}

// Datastore is the transport factory and error classifier.
type Datastore interface {
	CreateWatchStream() WatchStream
	CreateWriteStream() WriteStream
	IsPermanentWriteError(err error) bool
	IsAborted(err error) bool
}

// WatchStream is the control surface of the watch transport. Events
// are delivered back into the remote store via the WatchStreamDelegate
// passed to Start.
type WatchStream interface {
	Start(delegate WatchStreamDelegate)
	Stop()
	IsStarted() bool
	IsOpen() bool
	MarkIdle()
	WatchQuery(query QueryData)
	UnwatchTarget(target TargetID)
}

// WatchStreamDelegate receives callbacks from a WatchStream.
type WatchStreamDelegate interface {
	OnWatchStreamOpen()
	OnWatchStreamChange(change WatchChange, snapshotVersion hlc.Time)
	OnWatchStreamClose(err error)
}

// WriteStream is the control surface of the write transport.
type WriteStream interface {
	Start(delegate WriteStreamDelegate)
	Stop()
	IsStarted() bool
	HandshakeComplete() bool
	LastStreamToken() []byte
	// LoadStreamToken seeds the stream's last-known token before it is
	// started, so a freshly (re)created stream resumes from the
	// token the local store last persisted.
	LoadStreamToken(token []byte)
	WriteHandshake()
	WriteMutations(batch MutationBatch)
	MarkIdle()
	InhibitBackoff()
}

// WriteStreamDelegate receives callbacks from a WriteStream.
type WriteStreamDelegate interface {
	OnWriteStreamOpen()
	OnWriteStreamHandshakeComplete()
	OnWriteStreamResponse(commitVersion hlc.Time, results []MutationResult)
	OnWriteStreamClose(err error)
}

// SyncEngine is the collaborator that owns user-visible outcomes.
type SyncEngine interface {
	ApplyRemoteEvent(event RemoteEvent)
	RejectListen(target TargetID, err error)
	ApplySuccessfulWrite(result MutationBatchResult)
	RejectFailedWrite(batchID BatchID, err error)
}

// OnlineStateDelegate is notified on genuine online-state transitions
// only; it is never called after Shutdown.
type OnlineStateDelegate interface {
	OnWatchStreamOnlineStateChanged(newState OnlineState)
}
