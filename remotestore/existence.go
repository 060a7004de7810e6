package remotestore

import (
	"github.com/pkg/errors"

	"github.com/docsync/remotestore/internal/hlc"
)

// reconcileExistenceFilters implements §4.4: it consumes the
// existence filters and per-target mappings the aggregator produced
// for this pass and folds their effect into the in-flight RemoteEvent
// and the listen-target table. It lives on the watch subsystem (C3)
// because, unlike the aggregator, it is allowed to mutate
// s.listenTargets and issue new watch/unwatch requests.
func (s *Store) reconcileExistenceFilters(
	event *RemoteEvent, filters map[TargetID]ExistenceFilter, mappings map[TargetID]Mapping,
) {
	for target, filter := range filters {
		qd, active := s.listenTargets[target]
		if !active {
			continue
		}

		switch qd.Query.Kind {
		case QueryKindDocument:
			s.reconcileDocumentExistence(event, qd, filter)
		case QueryKindCollection:
			s.reconcileCollectionExistence(event, qd, filter, mappings[target])
		}
	}
}

func (s *Store) reconcileDocumentExistence(event *RemoteEvent, qd QueryData, filter ExistenceFilter) {
	switch filter.Count {
	case 0:
		key := DocumentKey(qd.Query.Path)
		event.DocumentUpdates[key] = Document{
			Key:     key,
			Data:    nil,
			Version: event.SnapshotVersion,
		}
	case 1:
		// The server confirms the document exists; nothing to do.
	default:
		// A document-query existence filter must report 0 or 1: any
		// other count is a protocol violation, not a reconcilable
		// drift. Per §7.4/§7.6 this is surfaced to the sync engine the
		// same way a target error is, rather than silently logged.
		err := errors.Wrapf(ErrExistenceFilterProtocolViolation,
			"target %d: document existence filter reported count %d", qd.TargetID, filter.Count)
		delete(s.listenTargets, qd.TargetID)
		delete(s.pendingTargetResponses, qd.TargetID)
		s.syncEngine.RejectListen(qd.TargetID, err)
	}
}

func (s *Store) reconcileCollectionExistence(
	event *RemoteEvent, qd QueryData, filter ExistenceFilter, mapping Mapping,
) {
	tracked := s.localStore.RemoteDocumentKeys(qd.TargetID)
	tracked = applyMapping(tracked, mapping)

	if len(tracked) == filter.Count {
		return
	}

	existenceFilterMismatches.Inc()
	event.OnExistenceFilterMismatch(qd.TargetID)

	fresh := QueryData{
		Query:    qd.Query,
		TargetID: qd.TargetID,
		Purpose:  PurposeListen,
		// No resume token: force a full re-listen.
		SnapshotVersion: hlc.Zero(),
		ResumeToken:     nil,
	}
	s.listenTargets[qd.TargetID] = fresh

	if s.watchStream != nil && s.watchStream.IsOpen() {
		s.watchStream.UnwatchTarget(qd.TargetID)
		s.incrementPendingResponse(qd.TargetID)

		// The mismatch-purpose QueryData is deliberately not stored
		// in the listen table: it applies only to this first
		// re-listen, and future reconnects use the plain Listen
		// purpose already recorded above.
		s.watchStream.WatchQuery(fresh.WithPurpose(PurposeExistenceFilterMismatch))
		s.incrementPendingResponse(qd.TargetID)
	}
}

func applyMapping(tracked map[DocumentKey]bool, mapping Mapping) map[DocumentKey]bool {
	if mapping.Kind == MappingNone {
		return tracked
	}
	if mapping.Kind == MappingReset {
		reset := make(map[DocumentKey]bool, len(mapping.Added))
		for _, k := range mapping.Added {
			reset[k] = true
		}
		return reset
	}

	out := make(map[DocumentKey]bool, len(tracked))
	for k := range tracked {
		out[k] = true
	}
	for _, k := range mapping.Added {
		out[k] = true
	}
	for _, k := range mapping.Removed {
		delete(out, k)
	}
	return out
}
