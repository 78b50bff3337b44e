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

	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/proto"
)

// Gesture activation state is a plain per-owner column set. A failed
// activation is not fatal and is never routed through the delayed
// mutation manager; the viewer just re-activates.

// ActivateGestures marks the given items as active gestures for the
// owner.
func (e *Engine) ActivateGestures(ctx context.Context, ownerID uuid.UUID, itemIDs []uuid.UUID) error {
	ts := newTimestamp()

	muts := make(columnar.RowMutations)
	ownerRow := encodeUUID(ownerID)
	for _, itemID := range itemIDs {
		muts.Add(ownerRow, cfActiveGestures, columnar.PutColumn(encodeUUID(itemID), []byte{}, ts))
	}
	if err := e.client.Mutate(ctx, muts); err != nil {
		return proto.StorageError(err, "unable to activate gestures for %v", ownerID)
	}
	return nil
}

// DeactivateGestures clears the active flag for the given items.
func (e *Engine) DeactivateGestures(ctx context.Context, ownerID uuid.UUID, itemIDs []uuid.UUID) error {
	ts := newTimestamp()

	muts := make(columnar.RowMutations)
	ownerRow := encodeUUID(ownerID)
	for _, itemID := range itemIDs {
		muts.Add(ownerRow, cfActiveGestures, columnar.DeleteColumns(nil, [][]byte{encodeUUID(itemID)}, ts))
	}
	if err := e.client.Mutate(ctx, muts); err != nil {
		return proto.StorageError(err, "unable to deactivate gestures for %v", ownerID)
	}
	return nil
}

// GetActiveGestureItemIDs lists the ids of the owner's active
// gestures.
func (e *Engine) GetActiveGestureItemIDs(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	entries, err := e.client.GetSlice(ctx, encodeUUID(ownerID),
		columnar.ColumnParent{CF: cfActiveGestures},
		columnar.SlicePredicate{Range: &columnar.SliceRange{}})
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve active gestures for %v", ownerID)
	}

	ret := make([]uuid.UUID, 0, len(entries))
	for i := range entries {
		if entries[i].Column != nil {
			ret = append(ret, decodeUUID(entries[i].Column.Name))
		}
	}
	return ret, nil
}

// GetActiveGestureItems fetches the full items for the owner's active
// gestures. Items whose data has gone missing are skipped.
func (e *Engine) GetActiveGestureItems(ctx context.Context, ownerID uuid.UUID) ([]*proto.Item, error) {
	itemIDs, err := e.GetActiveGestureItemIDs(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return e.GetItems(ctx, itemIDs, false)
}
