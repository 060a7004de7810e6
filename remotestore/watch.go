package remotestore

import (
	log "github.com/sirupsen/logrus"

	"github.com/docsync/remotestore/internal/hlc"
)

// shouldStartWatchStream reports whether the watch stream needs to be
// (re)started: the network must be enabled, the stream must not
// already be started, and at least one target must be active.
func (s *Store) shouldStartWatchStream() bool {
	return s.networkEnabled() && !s.watchStream.IsStarted() && len(s.listenTargets) > 0
}

// listen implements the listen() operation of §4.2.
func (s *Store) listen(query QueryData) {
	if _, exists := s.listenTargets[query.TargetID]; exists {
		assertf("remotestore: duplicate listen for target %d", query.TargetID)
	}

	s.listenTargets[query.TargetID] = query

	switch {
	case s.shouldStartWatchStream():
		s.watchStream.Start(s)
	case s.networkEnabled() && s.watchStream.IsOpen():
		s.watchStream.WatchQuery(query)
		s.incrementPendingResponse(query.TargetID)
	}
}

// unlisten implements the unlisten() operation of §4.2.
func (s *Store) unlisten(target TargetID) {
	if _, exists := s.listenTargets[target]; !exists {
		assertf("remotestore: unlisten of unknown target %d", target)
	}

	delete(s.listenTargets, target)

	if s.networkEnabled() && s.watchStream.IsOpen() {
		s.watchStream.UnwatchTarget(target)
		s.incrementPendingResponse(target)
	}

	if len(s.listenTargets) == 0 && s.networkEnabled() {
		s.watchStream.MarkIdle()
	}
}

func (s *Store) incrementPendingResponse(target TargetID) {
	s.pendingTargetResponses[target]++
}

// OnWatchStreamOpen implements WatchStreamDelegate. It re-emits a
// watch request for every target currently in the listen table, so
// the server can resume each one from its stored resume token.
func (s *Store) OnWatchStreamOpen() {
	s.exec.Do(func() {
		for _, qd := range s.listenTargets {
			s.watchStream.WatchQuery(qd)
			s.incrementPendingResponse(qd.TargetID)
		}
	})
}

// OnWatchStreamChange implements WatchStreamDelegate, per §4.2.
func (s *Store) OnWatchStreamChange(change WatchChange, snapshotVersion hlc.Time) {
	s.exec.Do(func() { s.onWatchStreamChange(change, snapshotVersion) })
}

func (s *Store) onWatchStreamChange(change WatchChange, snapshotVersion hlc.Time) {
	s.online.handleMessageReceived()

	if change.Kind == WatchChangeKindTarget &&
		change.Target.State == TargetChangeRemoved &&
		change.Target.Cause != nil {
		s.processTargetError(change.Target)
		return
	}

	s.accumulatedChanges = append(s.accumulatedChanges, change)

	if snapshotVersion.IsZero() || hlc.Less(snapshotVersion, s.localStore.LastRemoteSnapshotVersion()) {
		return
	}

	s.flushAccumulatedChanges(snapshotVersion)
}

// flushAccumulatedChanges drains accumulated_changes through the
// aggregator (C1), reconciles any existence filters (§4.4), advances
// resume tokens, and forwards the resulting RemoteEvent.
func (s *Store) flushAccumulatedChanges(snapshotVersion hlc.Time) {
	changes := s.accumulatedChanges
	s.accumulatedChanges = nil

	event, pendingResponses, existenceFilters, mappings := aggregate(
		snapshotVersion, s.listenTargets, s.pendingTargetResponses, changes,
	)
	s.pendingTargetResponses = pendingResponses

	s.reconcileExistenceFilters(&event, existenceFilters, mappings)
	s.advanceResumeTokens(&event)

	listenTargetsGauge.Set(float64(len(s.listenTargets)))
	s.syncEngine.ApplyRemoteEvent(event)
}

// advanceResumeTokens implements the final step of §4.4: any
// target-change carrying a non-empty resume token, whose target is
// still active, replaces the stored QueryData with one carrying the
// new (snapshot_version, resume_token).
func (s *Store) advanceResumeTokens(event *RemoteEvent) {
	for target, token := range event.TargetTokens {
		if len(token) == 0 {
			continue
		}
		qd, active := s.listenTargets[target]
		if !active {
			continue
		}
		s.listenTargets[target] = qd.WithSnapshot(event.SnapshotVersion, token)
	}
}

// processTargetError implements process_target_error from §4.2: the
// target is removed and surfaced to the sync engine immediately,
// independent of any changes presently sitting in accumulated_changes
// (see the Open Question resolution in §9).
func (s *Store) processTargetError(change TargetChange) {
	for _, target := range change.TargetIDs {
		if _, active := s.listenTargets[target]; !active {
			continue
		}
		delete(s.listenTargets, target)
		delete(s.pendingTargetResponses, target)
		s.syncEngine.RejectListen(target, change.Cause)
	}
	listenTargetsGauge.Set(float64(len(s.listenTargets)))
}

// OnWatchStreamClose implements WatchStreamDelegate, per §4.2.
func (s *Store) OnWatchStreamClose(err error) {
	s.exec.Do(func() { s.onWatchStreamClose(err) })
}

func (s *Store) onWatchStreamClose(err error) {
	if !s.networkEnabled() {
		assertf("remotestore: watch stream closed while network disabled")
	}

	s.cleanupWatchState()

	// A closure that is followed by a restart counts as a failure
	// (Healthy drops to Unknown, otherwise the failure counter grows);
	// a closure with no restart (e.g. no active listens) moves to
	// Unknown and resets the counter.
	if s.shouldStartWatchStream() {
		s.online.handleStreamFailure()
		s.watchStream.Start(s)
	} else {
		s.online.handleStreamClose()
	}

	s.cfg.log.WithFields(log.Fields{"error": err}).Debug("watch stream closed")
}

// cleanupWatchState clears accumulated changes and pending-target
// responses. The server resends everything needed on resume, so
// nothing here needs to survive a reconnect (invariant I2).
func (s *Store) cleanupWatchState() {
	s.accumulatedChanges = nil
	s.pendingTargetResponses = make(map[TargetID]int)
}
