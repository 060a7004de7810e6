// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package remotestore implements the remote-store core of a
// client-side synchronization library: the watch subsystem, the
// write subsystem, the online-state machine, and the watch-change
// aggregator that ties them together.
package remotestore

import "github.com/docsync/remotestore/internal/hlc"

// MaxPendingWrites bounds the number of mutation batches the write
// subsystem will hold in flight at once (invariant I3).
const MaxPendingWrites = 10

// FailureThreshold is the number of consecutive watch-stream failures,
// observed while not Healthy, that are required before the online
// state transitions to Failed.
const FailureThreshold = 2

// BatchID identifies a MutationBatch handed to the write pipeline by
// the local store. UnknownBatchID is the sentinel used before any
// batch has been seen, and after a user change resets last_batch_seen.
type BatchID int64

// UnknownBatchID is the sentinel value of BatchID meaning "no batch
// seen yet".
const UnknownBatchID BatchID = 0

// TargetID is an opaque identifier assigned by the sync engine to a
// single listen.
type TargetID int32

// Purpose classifies why a target is being listened to.
type Purpose int

const (
	// PurposeListen is an ordinary, user-initiated query listen.
	PurposeListen Purpose = iota
	// PurposeExistenceFilterMismatch marks a one-shot re-listen
	// issued to resolve an existence-filter mismatch (§4.4). It is
	// never persisted in the listen-target table.
	PurposeExistenceFilterMismatch
	// PurposeLimboResolution marks a re-listen issued to resolve a
	// document stuck in limbo.
	PurposeLimboResolution
)

// QueryKind distinguishes a listen that targets a single document
// from one that targets a collection; existence-filter reconciliation
// (§4.4) treats the two differently.
type QueryKind int

const (
	// QueryKindDocument listens to exactly one document.
	QueryKindDocument QueryKind = iota
	// QueryKindCollection listens to a set of documents matched by a
	// query.
	QueryKindCollection
)

// Query is the opaque, comparable description of what a target is
// listening to. Query evaluation itself is out of scope; only the
// kind and a caller-supplied path/identity are retained.
type Query struct {
	Kind QueryKind
	Path string
}

// QueryData is the record the remote store keeps per active target.
// Instances are treated as immutable values: the With* methods return
// a modified copy, they never mutate the receiver.
type QueryData struct {
	Query           Query
	TargetID        TargetID
	Purpose         Purpose
	SnapshotVersion hlc.Time
	ResumeToken     []byte
}

// WithSnapshot returns a copy of q with an updated snapshot version
// and resume token.
func (q QueryData) WithSnapshot(version hlc.Time, token []byte) QueryData {
	q.SnapshotVersion = version
	q.ResumeToken = token
	return q
}

// WithPurpose returns a copy of q with an updated purpose.
func (q QueryData) WithPurpose(p Purpose) QueryData {
	q.Purpose = p
	return q
}

// Mutation is a single row-level write queued by the local store.
type Mutation struct {
	Key  []byte
	Data []byte // nil/empty means delete
}

// MutationBatch is an atomic group of writes accepted from the local
// store but not yet acknowledged by the backend.
type MutationBatch struct {
	BatchID   BatchID
	Mutations []Mutation
}

// MutationResult describes the outcome the backend reported for a
// single mutation within a batch.
type MutationResult struct {
	Version hlc.Time
}

// MutationBatchResult is handed to SyncEngine.ApplySuccessfulWrite
// once the oldest pending batch has been acknowledged.
type MutationBatchResult struct {
	Batch           MutationBatch
	CommitVersion   hlc.Time
	MutationResults []MutationResult
	StreamToken     []byte
}

// OnlineState is the health of the watch stream as observed by
// higher layers.
type OnlineState int

const (
	// OnlineStateUnknown is the initial state and the state entered
	// whenever a healthy stream closes with no active listens.
	OnlineStateUnknown OnlineState = iota
	// OnlineStateHealthy means the watch stream has recently
	// delivered a message from the server.
	OnlineStateHealthy
	// OnlineStateFailed means the watch stream has failed
	// FailureThreshold times in a row, or the network was explicitly
	// disabled.
	OnlineStateFailed
)

func (s OnlineState) String() string {
	switch s {
	case OnlineStateUnknown:
		return "Unknown"
	case OnlineStateHealthy:
		return "Healthy"
	case OnlineStateFailed:
		return "Failed"
	default:
		return "Invalid"
	}
}
