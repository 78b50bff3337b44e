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
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/proto"
)

// Asset type codes the engine needs for purge logging.
const (
	assetTypeLink       int32 = 24
	assetTypeLinkFolder int32 = 25
)

// GetItem fetches one item. Item data lives only in the containing
// folder row, so the parent is resolved through the item index unless
// the caller already knows it. Even with an index entry present the
// item data can be missing for a moment while a racing mutation
// settles; the two failure modes carry distinct messages.
func (e *Engine) GetItem(ctx context.Context, itemID, parentFolderHint uuid.UUID) (*proto.Item, error) {
	defer observeOp("GetItem", time.Now())

	parentID := parentFolderHint
	if parentID == uuid.Nil {
		var err error
		parentID, err = e.FindItemParentFolderID(ctx, itemID)
		if err != nil {
			return nil, err
		}
	}
	if parentID == uuid.Nil {
		return nil, fmt.Errorf("item with ID %v could not be found: item was not found in the index: %w",
			itemID, proto.ErrObjectMissing)
	}

	entries, err := e.client.GetSlice(ctx, encodeUUID(parentID),
		columnar.ColumnParent{CF: cfFolders, Super: encodeUUID(itemID)},
		columnar.SlicePredicate{Range: &columnar.SliceRange{}})
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve item %v", itemID)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("item with ID %v could not be found: item was not found in its folder: %w",
			itemID, proto.ErrObjectMissing)
	}

	cols := make([]columnar.Column, 0, len(entries))
	for i := range entries {
		if entries[i].Column != nil {
			cols = append(cols, *entries[i].Column)
		}
	}
	return decodeItem(itemID, parentID, cols), nil
}

// GetItems fetches many items, grouped by parent folder so items
// sharing a folder cost one slice. With failOnMissing set, any item
// the index or folder data cannot account for fails the whole call.
func (e *Engine) GetItems(ctx context.Context, itemIDs []uuid.UUID, failOnMissing bool) ([]*proto.Item, error) {
	defer observeOp("GetItems", time.Now())

	mapping, err := e.FindItemParentFolderIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	if failOnMissing {
		total := 0
		for _, ids := range mapping {
			total += len(ids)
		}
		if total != len(itemIDs) {
			return nil, fmt.Errorf("one or more items requested could not be found: %w", proto.ErrObjectMissing)
		}
	}

	var ret []*proto.Item
	for folderID, ids := range mapping {
		items, err := e.getItemsInSameFolder(ctx, folderID, ids, failOnMissing)
		if err != nil {
			return nil, err
		}
		ret = append(ret, items...)
	}
	return ret, nil
}

// getItemsInSameFolder slices several item super columns out of one
// folder row.
func (e *Engine) getItemsInSameFolder(ctx context.Context, folderID uuid.UUID, itemIDs []uuid.UUID, failOnMissing bool) ([]*proto.Item, error) {
	names := make([][]byte, len(itemIDs))
	for i, id := range itemIDs {
		names[i] = encodeUUID(id)
	}

	entries, err := e.client.GetColumns(ctx, encodeUUID(folderID), columnar.ColumnParent{CF: cfFolders}, names)
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve items in folder %v", folderID)
	}
	if failOnMissing && len(entries) != len(names) {
		return nil, fmt.Errorf("one or more items requested could not be found: %w", proto.ErrObjectMissing)
	}

	ret := make([]*proto.Item, 0, len(entries))
	for i := range entries {
		if entries[i].Super == nil {
			continue
		}
		itemID := decodeUUID(entries[i].Super.Name)
		ret = append(ret, decodeItem(itemID, folderID, entries[i].Super.Columns))
	}
	return ret, nil
}

// FindItemParentFolderID resolves the folder containing itemID. A
// missing index entry returns the zero UUID without error.
func (e *Engine) FindItemParentFolderID(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	entries, err := e.client.GetSlice(ctx, encodeUUID(itemID),
		columnar.ColumnParent{CF: cfItemParents},
		columnar.SlicePredicate{Range: &columnar.SliceRange{}})
	if err != nil {
		return uuid.Nil, proto.StorageError(err, "unable to look up parent for item %v", itemID)
	}
	for i := range entries {
		if entries[i].Column != nil && string(entries[i].Column.Name) == string(colParent) {
			return decodeUUID(entries[i].Column.Value), nil
		}
	}
	return uuid.Nil, nil
}

// FindItemParentFolderIDs resolves many item parents at once, grouped
// as folder -> contained items. Items without an index entry are
// silently absent.
func (e *Engine) FindItemParentFolderIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	keys := make([][]byte, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = encodeUUID(id)
	}

	rows, err := e.client.MultigetChunked(ctx, keys, columnar.ColumnParent{CF: cfItemParents},
		columnar.SlicePredicate{ColumnNames: [][]byte{colParent}}, e.indexChunk)
	if err != nil {
		return nil, proto.StorageError(err, "unable to look up item parents")
	}

	ret := make(map[uuid.UUID][]uuid.UUID)
	for rowKey, entries := range rows {
		if len(entries) != 1 || entries[0].Column == nil {
			continue
		}
		parentID := decodeUUID(entries[0].Column.Value)
		ret[parentID] = append(ret[parentID], decodeUUID([]byte(rowKey)))
	}
	return ret, nil
}

// checkAndFixItemParentFolder rewrites a zero parent folder to the
// owner's root folder before the item is persisted.
func (e *Engine) checkAndFixItemParentFolder(ctx context.Context, item *proto.Item) error {
	if item.Folder != uuid.Nil {
		return nil
	}
	span := trace.SpanFromContextSafe(ctx)
	span.Warnf("repairing parent folder ID for item %v for %v: folder set to zero UUID", item.ID, item.Owner)

	rootFolder, err := e.FindFolderForType(ctx, item.Owner, proto.FolderTypeRoot)
	if err != nil {
		return err
	}
	item.Folder = rootFolder.ID
	return nil
}

// CreateItem writes a new item into its folder and the item index in
// one batch.
func (e *Engine) CreateItem(ctx context.Context, item *proto.Item) error {
	ts := newTimestamp()
	if err := e.checkAndFixItemParentFolder(ctx, item); err != nil {
		return err
	}
	err := e.createItemAt(ctx, item, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opCreateItem, item: item.Clone(), timestamp: ts})
}

func (e *Engine) createItemAt(ctx context.Context, item *proto.Item, ts int64) error {
	muts := make(columnar.RowMutations)
	itemStorageMutations(muts, item, item.Folder, ts)
	itemParentStorageMutations(muts, item.ID, item.Folder, ts)
	return e.client.Mutate(ctx, muts)
}

// SaveItem rewrites an existing item. The item index entry is
// rewritten in the same batch even though it should not have changed;
// an item that lost its index entry heals on its next save.
func (e *Engine) SaveItem(ctx context.Context, item *proto.Item) error {
	ts := newTimestamp()
	if err := e.checkAndFixItemParentFolder(ctx, item); err != nil {
		return err
	}
	err := e.saveItemAt(ctx, item, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opSaveItem, item: item.Clone(), timestamp: ts})
}

func (e *Engine) saveItemAt(ctx context.Context, item *proto.Item, ts int64) error {
	muts := make(columnar.RowMutations)
	itemStorageMutations(muts, item, item.Folder, ts)
	itemParentStorageMutations(muts, item.ID, item.Folder, ts)
	return e.client.Mutate(ctx, muts)
}

// MoveItem relocates an item: written into the new folder, index
// repointed and removed from the old folder, all in one batch. Moving
// an item onto its current folder is a logged no-op.
func (e *Engine) MoveItem(ctx context.Context, item *proto.Item, parentFolderID uuid.UUID) error {
	span := trace.SpanFromContextSafe(ctx)
	ts := newTimestamp()

	if parentFolderID == uuid.Nil {
		return proto.StorageError(nil, "not moving item %v to new folder, destination folder has zero UUID", item.ID)
	}
	// moving an item onto its current folder would delete the copy
	// just written
	if item.Folder == parentFolderID {
		span.Warnf("refusing to move item %v to new folder %v for %v: the source and destination folder are the same",
			item.ID, parentFolderID, item.Owner)
		return nil
	}

	err := e.moveItemAt(ctx, item, parentFolderID, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opMoveItem, item: item.Clone(), target: parentFolderID, timestamp: ts})
}

func (e *Engine) moveItemAt(ctx context.Context, item *proto.Item, parentFolderID uuid.UUID, ts int64) error {
	muts := make(columnar.RowMutations)
	itemStorageMutations(muts, item, parentFolderID, ts)
	itemParentStorageMutations(muts, item.ID, parentFolderID, ts)
	itemDeletionMutations(muts, item.ID, item.Folder, ts, true)

	if err := e.client.Mutate(ctx, muts); err != nil {
		return err
	}
	item.Folder = parentFolderID
	return nil
}

// SendItemToTrash moves an item into the owner's trash folder,
// locating it when no hint is given. Returns the trash folder id.
func (e *Engine) SendItemToTrash(ctx context.Context, item *proto.Item, trashFolderHint uuid.UUID) (uuid.UUID, error) {
	ts := newTimestamp()
	trashID, err := e.sendItemToTrashAt(ctx, item, trashFolderHint, ts)
	err = e.retryOrFail(ctx, err, &pendingOp{kind: opTrashItem, item: item.Clone(), target: trashFolderHint, timestamp: ts})
	if err != nil {
		return uuid.Nil, err
	}
	if trashID == uuid.Nil {
		trashID = trashFolderHint
	}
	return trashID, nil
}

func (e *Engine) sendItemToTrashAt(ctx context.Context, item *proto.Item, trashFolderHint uuid.UUID, ts int64) (uuid.UUID, error) {
	if trashFolderHint != uuid.Nil {
		return trashFolderHint, e.moveItemAt(ctx, item, trashFolderHint, ts)
	}

	trashFolder, err := e.FindFolderForType(ctx, item.Owner, proto.FolderTypeTrash)
	if err != nil {
		return uuid.Nil, proto.StorageError(err, "trash folder could not be found for user %v", item.Owner)
	}
	return trashFolder.ID, e.moveItemAt(ctx, item, trashFolder.ID, ts)
}

// PurgeItem permanently removes an item from its folder and the item
// index. The removal is logged with the asset classification since
// purges are a common support question.
func (e *Engine) PurgeItem(ctx context.Context, item *proto.Item) error {
	span := trace.SpanFromContextSafe(ctx)
	ts := newTimestamp()

	var invType string
	switch item.AssetType {
	case assetTypeLink:
		invType = "link"
	case assetTypeLinkFolder:
		invType = "folder link"
	default:
		invType = fmt.Sprintf("type %d", item.AssetType)
	}
	span.Warnf("purge of %s id=%v asset=%v %q for user=%v", invType, item.ID, item.AssetID, item.Name, item.Owner)

	err := e.purgeItemAt(ctx, item, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opPurgeItem, item: item.Clone(), timestamp: ts})
}

func (e *Engine) purgeItemAt(ctx context.Context, item *proto.Item, ts int64) error {
	muts := make(columnar.RowMutations)
	itemParentDeletionMutations(muts, item.ID, ts)
	itemDeletionMutations(muts, item.ID, item.Folder, ts, true)
	return e.client.Mutate(ctx, muts)
}

// PurgeItems removes many items in a single batch.
func (e *Engine) PurgeItems(ctx context.Context, items []*proto.Item) error {
	ts := newTimestamp()
	err := e.purgeItemsAt(ctx, items, ts)

	snapshot := make([]*proto.Item, len(items))
	for i, item := range items {
		snapshot[i] = item.Clone()
	}
	return e.retryOrFail(ctx, err, &pendingOp{kind: opPurgeItems, items: snapshot, timestamp: ts})
}

func (e *Engine) purgeItemsAt(ctx context.Context, items []*proto.Item, ts int64) error {
	muts := make(columnar.RowMutations)
	for _, item := range items {
		itemParentDeletionMutations(muts, item.ID, ts)
		itemDeletionMutations(muts, item.ID, item.Folder, ts, true)
	}
	return e.client.Mutate(ctx, muts)
}
