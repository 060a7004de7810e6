package remotestore

import (
	log "github.com/sirupsen/logrus"

	"github.com/docsync/remotestore/internal/hlc"
)

// shouldStartWriteStream reports whether the write stream needs to be
// (re)started: the network must be enabled, the stream must not
// already be started, and the pipeline must be non-empty.
func (s *Store) shouldStartWriteStream() bool {
	return s.networkEnabled() && !s.writeStream.IsStarted() && len(s.pendingWrites) > 0
}

func (s *Store) canWriteMutations() bool {
	return s.networkEnabled() && len(s.pendingWrites) < s.cfg.maxPendingWrites
}

// fillWritePipeline implements fill_write_pipeline from §4.5: it pulls
// batches from the local store until the pipeline is full, the local
// store has nothing more, or the network is disabled.
func (s *Store) fillWritePipeline() {
	for s.canWriteMutations() {
		batch, ok := s.localStore.NextMutationBatchAfter(s.lastBatchSeen)
		if !ok {
			break
		}
		s.commitBatch(batch)
	}

	if len(s.pendingWrites) == 0 && s.networkEnabled() {
		s.writeStream.MarkIdle()
	}
}

// commitBatch implements commit_batch from §4.5.
func (s *Store) commitBatch(batch MutationBatch) {
	s.lastBatchSeen = batch.BatchID
	s.pendingWrites = append(s.pendingWrites, batch)
	pendingWritesGauge.Set(float64(len(s.pendingWrites)))

	switch {
	case s.shouldStartWriteStream():
		s.writeStream.Start(s)
	case s.writeStream.HandshakeComplete():
		s.writeStream.WriteMutations(batch)
	}
}

// OnWriteStreamOpen implements WriteStreamDelegate, per §4.5: record
// the time the stream opened and send a handshake request.
func (s *Store) OnWriteStreamOpen() {
	s.exec.Do(func() {
		s.writeStreamOpenTime = s.cfg.clock.Now()
		s.writeStream.WriteHandshake()
	})
}

// OnWriteStreamHandshakeComplete implements WriteStreamDelegate, per
// §4.5: persist the new stream token, then resend every batch
// currently pending, bypassing can_write_mutations because the
// pipeline was already sized by commitBatch.
func (s *Store) OnWriteStreamHandshakeComplete() {
	s.exec.Do(func() {
		s.localStore.SetLastStreamToken(s.writeStream.LastStreamToken())
		for _, batch := range s.pendingWrites {
			s.writeStream.WriteMutations(batch)
		}
	})
}

// OnWriteStreamResponse implements WriteStreamDelegate, per §4.5: the
// response corresponds to the oldest pending batch (FIFO).
func (s *Store) OnWriteStreamResponse(commitVersion hlc.Time, results []MutationResult) {
	s.exec.Do(func() { s.onWriteStreamResponse(commitVersion, results) })
}

func (s *Store) onWriteStreamResponse(commitVersion hlc.Time, results []MutationResult) {
	if len(s.pendingWrites) == 0 {
		assertf("remotestore: mutation result with no pending writes")
	}

	batch := s.pendingWrites[0]
	s.pendingWrites = s.pendingWrites[1:]
	pendingWritesGauge.Set(float64(len(s.pendingWrites)))

	result := MutationBatchResult{
		Batch:           batch,
		CommitVersion:   commitVersion,
		MutationResults: results,
		StreamToken:     s.writeStream.LastStreamToken(),
	}

	s.syncEngine.ApplySuccessfulWrite(result)
	s.fillWritePipeline()
}

// OnWriteStreamClose implements WriteStreamDelegate, per §4.5.
func (s *Store) OnWriteStreamClose(err error) {
	s.exec.Do(func() { s.onWriteStreamClose(err) })
}

func (s *Store) onWriteStreamClose(err error) {
	if !s.networkEnabled() {
		assertf("remotestore: write stream closed while network disabled")
	}

	if err != nil && len(s.pendingWrites) > 0 {
		if s.writeStream.HandshakeComplete() {
			s.handleWriteError(err)
		} else {
			s.handleHandshakeError(err)
		}
	}

	if s.shouldStartWriteStream() {
		s.writeStream.Start(s)
	}

	s.cfg.log.WithFields(log.Fields{"error": err}).Debug("write stream closed")
}

// handleHandshakeError implements §4.5: a permanent or aborted
// pre-handshake error invalidates the stream token so the next
// handshake starts clean.
func (s *Store) handleHandshakeError(err error) {
	if s.datastore.IsPermanentWriteError(err) || s.datastore.IsAborted(err) {
		writeErrors.WithLabelValues("true").Inc()
		s.writeStream.LoadStreamToken(nil)
		s.localStore.SetLastStreamToken(nil)
	} else {
		writeErrors.WithLabelValues("false").Inc()
	}
}

// handleWriteError implements §4.5: only a permanent error pops the
// offending batch; transient errors are left to the stream's backoff.
func (s *Store) handleWriteError(err error) {
	if !s.datastore.IsPermanentWriteError(err) {
		writeErrors.WithLabelValues("false").Inc()
		return
	}

	writeErrors.WithLabelValues("true").Inc()
	batch := s.pendingWrites[0]
	s.pendingWrites = s.pendingWrites[1:]
	pendingWritesGauge.Set(float64(len(s.pendingWrites)))

	s.writeStream.InhibitBackoff()
	s.syncEngine.RejectFailedWrite(batch.BatchID, err)
	s.fillWritePipeline()
}
