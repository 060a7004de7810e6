//go:build wireinject
// +build wireinject

package remotestore

import "github.com/google/wire"

// NewStoreInjector declares the dependency graph for Wire; wire_gen.go
// holds the generated (here, hand-authored to match what `wire` would
// emit) implementation actually compiled into the binary.
func NewStoreInjector(
	localStore LocalStore, datastore Datastore, syncEngine SyncEngine, opts []Option,
) (*Store, func(), error) {
	panic(wire.Build(Set))
}
