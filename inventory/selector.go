// Copyright 2023 The InventoryDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/halcyongrid/inventorydb/proto"
)

// Backend is the subset of inventory operations a legacy provider must
// offer so the selector can route to it during a migration window.
type Backend interface {
	GetInventorySkeleton(ctx context.Context, ownerID uuid.UUID) ([]*proto.Folder, error)
	GetFolder(ctx context.Context, folderID uuid.UUID) (*proto.Folder, error)
	GetItem(ctx context.Context, itemID uuid.UUID, folderHint uuid.UUID) (*proto.Item, error)
}

// MigrationStatusReader reports where a user currently stands in the
// legacy -> columnar migration.
type MigrationStatusReader interface {
	MigrationStatus(ctx context.Context, ownerID uuid.UUID) (proto.MigrationStatus, error)
}

// ProviderSelector routes per-user inventory traffic to either the
// columnar engine or a legacy backend while a migration is underway.
// Once a user is seen as migrated the answer is cached for the life of
// the process; migration never runs backwards.
type ProviderSelector struct {
	engine *Engine
	legacy Backend
	status MigrationStatusReader

	// migrationActive false short-circuits everything to the engine
	migrationActive bool

	mu       sync.Mutex
	migrated map[uuid.UUID]struct{}

	group singleflight.Group
}

// NewProviderSelector builds a selector. With migrationActive false the
// legacy backend and status reader may be nil; every user routes to the
// engine.
func NewProviderSelector(engine *Engine, legacy Backend, status MigrationStatusReader, migrationActive bool) *ProviderSelector {
	return &ProviderSelector{
		engine:          engine,
		legacy:          legacy,
		status:          status,
		migrationActive: migrationActive,
		migrated:        make(map[uuid.UUID]struct{}),
	}
}

// Engine returns the columnar engine the selector routes migrated users
// to.
func (s *ProviderSelector) Engine() *Engine {
	return s.engine
}

// ProviderFor decides which backend serves the given user. Users mid
// migration get an error; their inventory must not be read or written
// until the copy finishes.
func (s *ProviderSelector) ProviderFor(ctx context.Context, ownerID uuid.UUID) (Backend, error) {
	if !s.migrationActive {
		return s.engine, nil
	}

	s.mu.Lock()
	_, ok := s.migrated[ownerID]
	s.mu.Unlock()
	if ok {
		return s.engine, nil
	}

	// collapse concurrent status lookups for the same user
	v, err, _ := s.group.Do(ownerID.String(), func() (interface{}, error) {
		return s.status.MigrationStatus(ctx, ownerID)
	})
	if err != nil {
		return nil, proto.StorageError(err, "unable to determine migration status for %v", ownerID)
	}

	switch v.(proto.MigrationStatus) {
	case proto.MigrationStatusMigrated:
		s.mu.Lock()
		s.migrated[ownerID] = struct{}{}
		s.mu.Unlock()
		return s.engine, nil
	case proto.MigrationStatusInProgress:
		return nil, fmt.Errorf("inventory can not be used while a migration is in progress for %v: %w", ownerID, proto.ErrStorage)
	default:
		return s.legacy, nil
	}
}
