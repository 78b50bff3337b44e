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
	"errors"
	"fmt"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/proto"
)

// Maintenance routines. All of them are idempotent and safe to run
// while the engine serves traffic; they repair the denormalized
// indexes from the primary folder rows.

// RepairFolderIndex finds owner index entries that can no longer be
// decoded. Entries whose primary folder row (and its parent) are still
// readable are rewritten from primary data; entries whose data is gone
// are dropped from the index.
func (e *Engine) RepairFolderIndex(ctx context.Context, ownerID uuid.UUID) error {
	span := trace.SpanFromContextSafe(ctx)

	entries, err := e.client.GetAllChunked(ctx, encodeUUID(ownerID),
		columnar.ColumnParent{CF: cfUserFolders}, e.indexChunk)
	if err != nil {
		return proto.StorageError(err, "unable to recover folder index for %v", ownerID)
	}

	var badIndexFolders []uuid.UUID
	for i := range entries {
		if entries[i].Super == nil {
			continue
		}
		if _, err := decodeIndexedFolder(ownerID, entries[i].Super); err != nil {
			badIndexFolders = append(badIndexFolders, decodeUUID(entries[i].Super.Name))
		}
	}

	// a folder with a bad index entry is recoverable if its primary
	// row and its parent's are both still readable; otherwise the
	// data is gone and only the index entry remains
	var (
		recoverable []*proto.Folder
		destroyed   []uuid.UUID
	)
	for _, id := range badIndexFolders {
		folder, err := e.GetFolderAttributes(ctx, id)
		if err == nil && folder.ParentID != uuid.Nil {
			_, err = e.GetFolderAttributes(ctx, folder.ParentID)
		}
		if err != nil {
			if errors.Is(err, proto.ErrObjectMissing) || errors.Is(err, errCorrupt) {
				destroyed = append(destroyed, id)
				continue
			}
			return proto.StorageError(err, "unable to recover folder index for %v", ownerID)
		}
		recoverable = append(recoverable, folder)
	}

	span.Infof("folder index repair for %v: %d bad entries, %d recoverable, %d destroyed",
		ownerID, len(badIndexFolders), len(recoverable), len(destroyed))

	ts := newTimestamp()
	for _, folder := range recoverable {
		if err := e.createFolderAt(ctx, folder, ts); err != nil {
			return proto.StorageError(err, "unable to recover folder index for %v", ownerID)
		}
	}
	for _, id := range destroyed {
		if err := e.removeFromIndex(ctx, ownerID, id, ts); err != nil {
			return proto.StorageError(err, "unable to recover folder index for %v", ownerID)
		}
	}
	return nil
}

// RebuildItemIndex rewrites the item -> folder index entry of every
// item the owner has, walking the folder skeleton for the ground
// truth.
func (e *Engine) RebuildItemIndex(ctx context.Context, ownerID uuid.UUID) error {
	skeleton, err := e.GetInventorySkeleton(ctx, ownerID)
	if err != nil {
		return err
	}

	muts := make(columnar.RowMutations)
	ts := newTimestamp()
	for _, stub := range skeleton {
		folder, err := e.GetFolder(ctx, stub.ID)
		if err != nil {
			return err
		}
		for _, item := range folder.Items {
			itemParentStorageMutations(muts, item.ID, folder.ID, ts)
		}
	}
	if len(muts) == 0 {
		return nil
	}
	return e.client.Mutate(ctx, muts)
}

// RepairSubfolderIndexes walks every folder of the owner and removes
// subfolder listings pointing at children that no longer resolve,
// cleaning up after partial deletions.
func (e *Engine) RepairSubfolderIndexes(ctx context.Context, ownerID uuid.UUID) error {
	span := trace.SpanFromContextSafe(ctx)

	index, err := e.folderIndex(ctx, ownerID)
	if err != nil {
		return proto.StorageError(err, "unable to repair subfolder index for %v", ownerID)
	}

	type parentChild struct {
		parent uuid.UUID
		child  uuid.UUID
	}
	var dangling []parentChild

	for id := range index {
		folder, err := e.GetFolder(ctx, id)
		if err != nil {
			// nothing to fix if the folder itself cannot be loaded
			span.Errorf("indexed folder %v could not be retrieved to look for children: %s", id, err)
			continue
		}
		for _, sub := range folder.SubFolders {
			_, err := e.GetFolderAttributes(ctx, sub.ID)
			if err == nil {
				continue
			}
			if errors.Is(err, proto.ErrObjectMissing) || errors.Is(err, errCorrupt) {
				dangling = append(dangling, parentChild{parent: folder.ID, child: sub.ID})
				continue
			}
			return proto.StorageError(err, "unable to repair subfolder index for %v", ownerID)
		}
	}

	span.Infof("found %d subfolder indexes to repair", len(dangling))

	ts := newTimestamp()
	for _, pc := range dangling {
		muts := make(columnar.RowMutations)
		subfolderIndexDeletion(muts, pc.parent, pc.child, ts)
		if err := e.client.Mutate(ctx, muts); err != nil {
			return proto.StorageError(err, "unable to repair subfolder index for %v", ownerID)
		}
	}
	return nil
}

// DestroyFolder force-deletes a single folder row and its index
// entries without touching its children. Last resort for folders too
// damaged or too large to read; everything beneath them is orphaned.
func (e *Engine) DestroyFolder(ctx context.Context, ownerID, folderID uuid.UUID) error {
	if folderID == uuid.Nil {
		return fmt.Errorf("refusing to allow the deletion of the inventory zero root folder: %w", proto.ErrUnrecoverable)
	}

	ts := newTimestamp()
	muts := make(columnar.RowMutations)
	singleFolderDeletionMutations(muts, ownerID, folderID, ts)
	return e.client.Mutate(ctx, muts)
}

// removeFromIndex drops one folder entry from the owner index.
func (e *Engine) removeFromIndex(ctx context.Context, ownerID, folderID uuid.UUID, ts int64) error {
	muts := make(columnar.RowMutations)
	muts.Add(encodeUUID(ownerID), cfUserFolders, columnar.DeleteSuper(encodeUUID(folderID), ts))
	return e.client.Mutate(ctx, muts)
}
