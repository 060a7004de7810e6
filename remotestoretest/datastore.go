package remotestoretest

import (
	"sync"

	"github.com/docsync/remotestore"
	"github.com/docsync/remotestore/internal/hlc"
)

// Datastore is a fake transport factory and error classifier. Tests
// reach into the WatchStream/WriteStream fields of the streams it
// hands out to drive callbacks.
type Datastore struct {
	mu sync.Mutex

	watchStreams []*WatchStream
	writeStreams []*WriteStream

	PermanentErrors map[error]bool
	AbortedErrors   map[error]bool
}

// NewDatastore builds an empty Datastore fake.
func NewDatastore() *Datastore {
	return &Datastore{
		PermanentErrors: make(map[error]bool),
		AbortedErrors:   make(map[error]bool),
	}
}

var _ remotestore.Datastore = (*Datastore)(nil)

// CreateWatchStream implements remotestore.Datastore.
func (d *Datastore) CreateWatchStream() remotestore.WatchStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	ws := &WatchStream{}
	d.watchStreams = append(d.watchStreams, ws)
	return ws
}

// CreateWriteStream implements remotestore.Datastore.
func (d *Datastore) CreateWriteStream() remotestore.WriteStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	ws := &WriteStream{}
	d.writeStreams = append(d.writeStreams, ws)
	return ws
}

// IsPermanentWriteError implements remotestore.Datastore.
func (d *Datastore) IsPermanentWriteError(err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PermanentErrors[err]
}

// IsAborted implements remotestore.Datastore.
func (d *Datastore) IsAborted(err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.AbortedErrors[err]
}

// LatestWatchStream returns the most recently created WatchStream, or
// nil if none has been created yet.
func (d *Datastore) LatestWatchStream() *WatchStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.watchStreams) == 0 {
		return nil
	}
	return d.watchStreams[len(d.watchStreams)-1]
}

// LatestWriteStream returns the most recently created WriteStream, or
// nil if none has been created yet.
func (d *Datastore) LatestWriteStream() *WriteStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.writeStreams) == 0 {
		return nil
	}
	return d.writeStreams[len(d.writeStreams)-1]
}

// WatchStream is a fake remotestore.WatchStream that records every
// control call it receives and lets the test inject delegate events.
type WatchStream struct {
	mu sync.Mutex

	delegate remotestore.WatchStreamDelegate
	started  bool
	open     bool
	idle     bool

	Watched   []remotestore.QueryData
	Unwatched []remotestore.TargetID
}

var _ remotestore.WatchStream = (*WatchStream)(nil)

// Start implements remotestore.WatchStream.
func (w *WatchStream) Start(delegate remotestore.WatchStreamDelegate) {
	w.mu.Lock()
	w.delegate = delegate
	w.started = true
	w.mu.Unlock()
}

// Stop implements remotestore.WatchStream.
func (w *WatchStream) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = false
	w.open = false
}

// IsStarted implements remotestore.WatchStream.
func (w *WatchStream) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// IsOpen implements remotestore.WatchStream.
func (w *WatchStream) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// MarkIdle implements remotestore.WatchStream.
func (w *WatchStream) MarkIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.idle = true
}

// WatchQuery implements remotestore.WatchStream.
func (w *WatchStream) WatchQuery(query remotestore.QueryData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Watched = append(w.Watched, query)
}

// UnwatchTarget implements remotestore.WatchStream.
func (w *WatchStream) UnwatchTarget(target remotestore.TargetID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Unwatched = append(w.Unwatched, target)
}

// Open simulates the transport opening and delivers on_open to the
// delegate. It also marks the stream as open for IsOpen callers.
func (w *WatchStream) Open() {
	w.mu.Lock()
	w.open = true
	w.idle = false
	delegate := w.delegate
	w.mu.Unlock()
	delegate.OnWatchStreamOpen()
}

// Change simulates the transport delivering a watch change.
func (w *WatchStream) Change(change remotestore.WatchChange, snapshotVersion hlc.Time) {
	w.mu.Lock()
	delegate := w.delegate
	w.mu.Unlock()
	delegate.OnWatchStreamChange(change, snapshotVersion)
}

// Close simulates the transport closing, with an optional error.
func (w *WatchStream) Close(err error) {
	w.mu.Lock()
	w.open = false
	delegate := w.delegate
	w.mu.Unlock()
	delegate.OnWatchStreamClose(err)
}

// WriteStream is a fake remotestore.WriteStream that records every
// control call it receives and lets the test inject delegate events.
type WriteStream struct {
	mu sync.Mutex

	delegate  remotestore.WriteStreamDelegate
	started   bool
	handshake bool
	token     []byte

	Written []remotestore.MutationBatch
	Idled   bool
	Inhibit int
}

var _ remotestore.WriteStream = (*WriteStream)(nil)

// Start implements remotestore.WriteStream.
func (w *WriteStream) Start(delegate remotestore.WriteStreamDelegate) {
	w.mu.Lock()
	w.delegate = delegate
	w.started = true
	w.handshake = false
	w.mu.Unlock()
}

// Stop implements remotestore.WriteStream.
func (w *WriteStream) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = false
	w.handshake = false
}

// IsStarted implements remotestore.WriteStream.
func (w *WriteStream) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// HandshakeComplete implements remotestore.WriteStream.
func (w *WriteStream) HandshakeComplete() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handshake
}

// LastStreamToken implements remotestore.WriteStream.
func (w *WriteStream) LastStreamToken() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

// LoadStreamToken implements remotestore.WriteStream.
func (w *WriteStream) LoadStreamToken(token []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.token = token
}

// WriteHandshake implements remotestore.WriteStream.
func (w *WriteStream) WriteHandshake() {}

// WriteMutations implements remotestore.WriteStream.
func (w *WriteStream) WriteMutations(batch remotestore.MutationBatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Written = append(w.Written, batch)
}

// MarkIdle implements remotestore.WriteStream.
func (w *WriteStream) MarkIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Idled = true
}

// InhibitBackoff implements remotestore.WriteStream.
func (w *WriteStream) InhibitBackoff() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Inhibit++
}

// Open simulates the transport opening and delivers on_open to the
// delegate.
func (w *WriteStream) Open() {
	w.mu.Lock()
	delegate := w.delegate
	w.mu.Unlock()
	delegate.OnWriteStreamOpen()
}

// CompleteHandshake installs a fresh stream token and notifies the
// delegate that the handshake finished.
func (w *WriteStream) CompleteHandshake(token []byte) {
	w.mu.Lock()
	w.handshake = true
	w.token = token
	delegate := w.delegate
	w.mu.Unlock()
	delegate.OnWriteStreamHandshakeComplete()
}

// Close simulates the transport closing, with an optional error. The
// handshake flag is left as it was, so the delegate can tell a
// post-handshake closure from a pre-handshake one; Start clears it for
// the next session.
func (w *WriteStream) Close(err error) {
	w.mu.Lock()
	delegate := w.delegate
	w.mu.Unlock()
	delegate.OnWriteStreamClose(err)
}
