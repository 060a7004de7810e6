package remotestore

import "github.com/docsync/remotestore/internal/hlc"

// workingTargetChange accumulates everything the aggregator has
// learned about one target during a single pass.
type workingTargetChange struct {
	state           TargetChangeState
	mapping         Mapping
	resumeToken     []byte
	resumeSnapshot  hlc.Time
	haveResumeToken bool
}

// aggregatorPass is the scoped, mutable working struct the aggregator
// operates over for exactly one call, per the purity requirement in
// §9: it never outlives a single invocation of aggregate.
type aggregatorPass struct {
	snapshotVersion  hlc.Time
	listenTargets    map[TargetID]QueryData
	pendingResponses map[TargetID]int // copied in, mutated, returned

	targets          map[TargetID]*workingTargetChange
	documentUpdates  map[DocumentKey]Document
	existenceFilters map[TargetID]ExistenceFilter
}

// aggregate implements C1: it folds a batch of raw watch changes
// against the outstanding listen targets and pending-response map to
// produce a consistent RemoteEvent, the updated pending-response map,
// and any existence filters the caller must reconcile (§4.4).
func aggregate(
	snapshotVersion hlc.Time,
	listenTargets map[TargetID]QueryData,
	pendingResponsesIn map[TargetID]int,
	changes []WatchChange,
) (RemoteEvent, map[TargetID]int, map[TargetID]ExistenceFilter, map[TargetID]Mapping) {
	pass := &aggregatorPass{
		snapshotVersion:  snapshotVersion,
		listenTargets:    listenTargets,
		pendingResponses: copyPendingResponses(pendingResponsesIn),
		targets:          make(map[TargetID]*workingTargetChange),
		documentUpdates:  make(map[DocumentKey]Document),
		existenceFilters: make(map[TargetID]ExistenceFilter),
	}

	for _, change := range changes {
		pass.apply(change)
	}

	return pass.emit()
}

func copyPendingResponses(in map[TargetID]int) map[TargetID]int {
	out := make(map[TargetID]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (p *aggregatorPass) working(target TargetID) *workingTargetChange {
	w, ok := p.targets[target]
	if !ok {
		w = &workingTargetChange{}
		p.targets[target] = w
	}
	return w
}

func (p *aggregatorPass) apply(change WatchChange) {
	switch change.Kind {
	case WatchChangeKindDocument:
		p.applyDocumentChange(change.Document)
	case WatchChangeKindTarget:
		p.applyTargetChange(change.Target)
	case WatchChangeKindExistenceFilter:
		ec := change.ExistenceFilter
		p.existenceFilters[ec.TargetID] = ec.Filter
	}
}

func (p *aggregatorPass) applyDocumentChange(dc DocumentChange) {
	p.documentUpdates[dc.Document.Key] = dc.Document
	for _, t := range dc.UpdatedTarget {
		w := p.working(t)
		w.mapping.Kind = mergeMappingAdd(w.mapping, dc.Document.Key)
		w.mapping.Added = append(w.mapping.Added, dc.Document.Key)
	}
	for _, t := range dc.RemovedTarget {
		w := p.working(t)
		w.mapping.Kind = mergeMappingRemove(w.mapping, dc.Document.Key)
		if w.mapping.Kind == MappingReset {
			kept := w.mapping.Added[:0]
			for _, k := range w.mapping.Added {
				if k != dc.Document.Key {
					kept = append(kept, k)
				}
			}
			w.mapping.Added = kept
		} else {
			w.mapping.Removed = append(w.mapping.Removed, dc.Document.Key)
		}
	}
}

func mergeMappingAdd(m Mapping, key DocumentKey) MappingKind {
	if m.Kind == MappingReset {
		return MappingReset
	}
	return MappingUpdate
}

func mergeMappingRemove(m Mapping, key DocumentKey) MappingKind {
	if m.Kind == MappingReset {
		return MappingReset
	}
	return MappingUpdate
}

func (p *aggregatorPass) applyTargetChange(tc TargetChange) {
	for _, target := range tc.TargetIDs {
		w := p.working(target)

		switch tc.State {
		case TargetChangeAdded, TargetChangeRemoved:
			p.decrementPendingResponse(target)
		}

		if tc.State != TargetChangeNoChange {
			w.state = tc.State
		}

		if tc.Mapping.Kind != MappingNone {
			w.mapping = mergeMapping(w.mapping, tc.Mapping)
		}

		if len(tc.ResumeToken) > 0 {
			if !w.haveResumeToken || hlc.Compare(p.snapshotVersion, w.resumeSnapshot) >= 0 {
				w.resumeToken = tc.ResumeToken
				w.resumeSnapshot = p.snapshotVersion
				w.haveResumeToken = true
			}
		}
	}
}

func mergeMapping(existing, incoming Mapping) Mapping {
	if incoming.Kind == MappingReset {
		return incoming
	}
	if existing.Kind == MappingReset {
		return existing
	}
	existing.Kind = MappingUpdate
	existing.Added = append(existing.Added, incoming.Added...)
	existing.Removed = append(existing.Removed, incoming.Removed...)
	return existing
}

func (p *aggregatorPass) decrementPendingResponse(target TargetID) {
	count, ok := p.pendingResponses[target]
	if !ok {
		assertf("remotestore: pending-response underflow for target %d", target)
	}
	count--
	if count <= 0 {
		delete(p.pendingResponses, target)
		return
	}
	p.pendingResponses[target] = count
}

// emit drops any target still unsettled (absent from the listen
// table, or still awaiting a pending response) and builds the
// RemoteEvent from what remains. Mappings are returned separately
// from the RemoteEvent: they are an internal handoff to existence-
// filter reconciliation (§4.4), not part of the public event shape.
func (p *aggregatorPass) emit() (RemoteEvent, map[TargetID]int, map[TargetID]ExistenceFilter, map[TargetID]Mapping) {
	event := RemoteEvent{
		SnapshotVersion: p.snapshotVersion,
		TargetChanges:   make(map[TargetID]TargetChangeState),
		TargetTokens:    make(map[TargetID][]byte),
		DocumentUpdates: p.documentUpdates,
	}
	mappings := make(map[TargetID]Mapping)

	for target, w := range p.targets {
		if _, active := p.listenTargets[target]; !active {
			continue
		}
		if _, pending := p.pendingResponses[target]; pending {
			continue
		}
		event.TargetChanges[target] = w.state
		if w.haveResumeToken {
			event.TargetTokens[target] = w.resumeToken
		}
		if w.mapping.Kind != MappingNone {
			mappings[target] = w.mapping
		}
	}

	return event, p.pendingResponses, p.existenceFilters, mappings
}
