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
	"strings"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/proto"
)

// errCorrupt marks a row that exists but cannot be decoded. It is a
// storage failure, but callers that walk trees treat it as a skippable
// inconsistency rather than aborting.
var errCorrupt = fmt.Errorf("row data corrupt: %w", proto.ErrStorage)

// GetInventorySkeleton returns attributes and versions for every
// folder the owner has, without contents.
func (e *Engine) GetInventorySkeleton(ctx context.Context, ownerID uuid.UUID) ([]*proto.Folder, error) {
	defer observeOp("GetInventorySkeleton", time.Now())

	index, err := e.folderIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(index) == 0 {
		return []*proto.Folder{}, nil
	}

	keys := make([][]byte, 0, len(index))
	for id := range index {
		keys = append(keys, encodeUUID(id))
	}
	versions, err := e.client.MultigetCounterChunked(ctx, keys, cfFolderVersions, colCount, e.versionChunk)
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve folder versions for %v", ownerID)
	}

	ret := make([]*proto.Folder, 0, len(index))
	for id, folder := range index {
		if count, ok := versions[string(encodeUUID(id))]; ok {
			folder.Version = uint16(count % versionModulus)
		}
		ret = append(ret, folder)
	}
	return ret, nil
}

// folderIndex loads the owner's full folder index. Corrupt index
// entries are logged and skipped; the maintenance routines make them
// whole again.
func (e *Engine) folderIndex(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]*proto.Folder, error) {
	span := trace.SpanFromContextSafe(ctx)

	entries, err := e.client.GetAllChunked(ctx, encodeUUID(ownerID),
		columnar.ColumnParent{CF: cfUserFolders}, e.indexChunk)
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve folder index for %v", ownerID)
	}

	index := make(map[uuid.UUID]*proto.Folder, len(entries))
	for i := range entries {
		if entries[i].Super == nil {
			continue
		}
		folder, err := decodeIndexedFolder(ownerID, entries[i].Super)
		if err != nil {
			span.Errorf("unable to read all columns from folder index entry %v: %s",
				decodeUUID(entries[i].Super.Name), err)
			continue
		}
		index[folder.ID] = folder
	}
	return index, nil
}

// GetFolder returns a folder with attributes, version, subfolder stubs
// and all contained items.
func (e *Engine) GetFolder(ctx context.Context, folderID uuid.UUID) (*proto.Folder, error) {
	defer observeOp("GetFolder", time.Now())

	if folderID == uuid.Nil {
		return nil, fmt.Errorf("not returning folder with zero UUID: %w", proto.ErrSecurity)
	}
	span := trace.SpanFromContextSafe(ctx)

	entries, err := e.client.GetAllChunked(ctx, encodeUUID(folderID),
		columnar.ColumnParent{CF: cfFolders}, e.contentsChunk)
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve folder %v", folderID)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("folder with ID %v could not be found: %w", folderID, proto.ErrObjectMissing)
	}

	parsed := parseFolderRow(entries)
	if parsed.properties == nil {
		return nil, fmt.Errorf("folder %v has no properties: %w", folderID, errCorrupt)
	}
	folder, err := decodeFolderProperties(folderID, parsed.properties)
	if err != nil {
		return nil, err
	}

	if parsed.subFolders != nil {
		for _, col := range parsed.subFolders.Columns {
			folder.SubFolders = append(folder.SubFolders, decodeSubFolderStub(folder.Owner, col))
		}
	}
	for _, itemSuper := range parsed.items {
		itemID := decodeUUID(itemSuper.Name)
		folder.Items = append(folder.Items, decodeItem(itemID, folderID, itemSuper.Columns))
	}

	version, exists, err := e.folderVersion(ctx, folderID)
	if err != nil || !exists {
		// a missing version column indicates a partially deleted folder
		// or a version mutation that never landed
		span.Errorf("could not retrieve the version for folder %v, substituting 1: %v", folderID, err)
		version = 1
	}
	folder.Version = version

	return folder, nil
}

// GetFolderAttributes returns a folder's properties and version
// without loading contents.
func (e *Engine) GetFolderAttributes(ctx context.Context, folderID uuid.UUID) (*proto.Folder, error) {
	defer observeOp("GetFolderAttributes", time.Now())

	if folderID == uuid.Nil {
		return nil, fmt.Errorf("not returning folder with zero UUID: %w", proto.ErrSecurity)
	}

	entries, err := e.client.GetSlice(ctx, encodeUUID(folderID),
		columnar.ColumnParent{CF: cfFolders, Super: superProperties},
		columnar.SlicePredicate{Range: &columnar.SliceRange{}})
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve folder attributes for %v", folderID)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("folder with ID %v could not be found: %w", folderID, proto.ErrObjectMissing)
	}

	cols := make([]columnar.Column, 0, len(entries))
	for i := range entries {
		if entries[i].Column != nil {
			cols = append(cols, *entries[i].Column)
		}
	}
	folder, err := decodeFolderProperties(folderID, &columnar.SuperColumn{Name: superProperties, Columns: cols})
	if err != nil {
		return nil, err
	}

	version, exists, err := e.folderVersion(ctx, folderID)
	if err != nil {
		return nil, proto.StorageError(err, "unable to retrieve version for folder %v", folderID)
	}
	if !exists {
		version = 1
	}
	folder.Version = version

	return folder, nil
}

// CreateFolder stores a new folder and registers it with its parent.
// The parent registration rides in a second batch; a failure between
// the two leaves an orphan the index repair can pick up.
func (e *Engine) CreateFolder(ctx context.Context, folder *proto.Folder) error {
	ts := newTimestamp()
	err := e.createFolderAt(ctx, folder, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opCreateFolder, folder: folder.Clone(), timestamp: ts})
}

func (e *Engine) createFolderAt(ctx context.Context, folder *proto.Folder, ts int64) error {
	if err := checkBasicFolderIntegrity(folder); err != nil {
		return err
	}

	muts := make(columnar.RowMutations)
	folderStorageMutations(muts, folder, mutateFolderAll, folder.ParentID, ts)
	if err := e.client.Mutate(ctx, muts); err != nil {
		return err
	}

	return e.updateParentWithNewChild(ctx, folder, folder.ParentID, uuid.Nil, ts)
}

// updateParentWithNewChild registers child under parentID and, when
// the child is leaving another folder, removes it there.
func (e *Engine) updateParentWithNewChild(ctx context.Context, child *proto.Folder, parentID, oldParentID uuid.UUID, ts int64) error {
	muts := make(columnar.RowMutations)
	parentUpdateForSubfolder(muts, child, parentID, ts)
	if parentID != uuid.Nil {
		versionIncrementMutation(muts, parentID)
	}
	if oldParentID != uuid.Nil && oldParentID != parentID {
		subfolderIndexDeletion(muts, oldParentID, child.ID, ts)
	}
	if len(muts) == 0 {
		return nil
	}
	return e.client.Mutate(ctx, muts)
}

// SaveFolder rewrites a folder's descriptive attributes and refreshes
// its entry in the parent's subfolder listing. The parent pointer is
// deliberately left alone; MoveFolder owns it.
func (e *Engine) SaveFolder(ctx context.Context, folder *proto.Folder) error {
	ts := newTimestamp()
	err := e.saveFolderAt(ctx, folder, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opSaveFolder, folder: folder.Clone(), timestamp: ts})
}

func (e *Engine) saveFolderAt(ctx context.Context, folder *proto.Folder, ts int64) error {
	if err := checkBasicFolderIntegrity(folder); err != nil {
		return err
	}

	muts := make(columnar.RowMutations)
	folderStorageMutations(muts, folder, mutateFolderAllButParent, uuid.Nil, ts)
	parentUpdateForSubfolder(muts, folder, folder.ParentID, ts)
	return e.client.Mutate(ctx, muts)
}

// MoveFolder reparents a folder. Moving a folder onto its current
// parent or onto the zero folder is a logged no-op.
func (e *Engine) MoveFolder(ctx context.Context, folder *proto.Folder, parentID uuid.UUID) error {
	span := trace.SpanFromContextSafe(ctx)
	ts := newTimestamp()

	// moving a folder into its current parent can corrupt the
	// subfolder index, so it is refused outright
	if folder.ParentID == parentID {
		span.Warnf("refusing to move folder %v to new parent %v for %v: the source and destination are the same",
			folder.ID, parentID, folder.Owner)
		return nil
	}
	if parentID == uuid.Nil {
		span.Warnf("refusing to move folder %v to new parent %v for %v: new parent has zero UUID",
			folder.ID, parentID, folder.Owner)
		return nil
	}

	err := e.moveFolderAt(ctx, folder, parentID, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opMoveFolder, folder: folder.Clone(), target: parentID, timestamp: ts})
}

func (e *Engine) moveFolderAt(ctx context.Context, folder *proto.Folder, parentID uuid.UUID, ts int64) error {
	if parentID == folder.ID {
		return fmt.Errorf("the parent for folder %v can not be set to itself: %w", folder.ID, proto.ErrUnrecoverable)
	}

	if err := e.changeFolderParent(ctx, folder, parentID, ts); err != nil {
		return err
	}
	if err := e.updateParentWithNewChild(ctx, folder, parentID, folder.ParentID, ts); err != nil {
		return err
	}
	folder.ParentID = parentID
	return nil
}

func (e *Engine) changeFolderParent(ctx context.Context, folder *proto.Folder, newParent uuid.UUID, ts int64) error {
	muts := make(columnar.RowMutations)
	folderStorageMutations(muts, folder, mutateFolderParentOnly, newParent, ts)
	return e.client.Mutate(ctx, muts)
}

// SendFolderToTrash moves a folder into the owner's trash folder,
// locating it when no hint is given. Returns the trash folder id.
func (e *Engine) SendFolderToTrash(ctx context.Context, folder *proto.Folder, trashFolderHint uuid.UUID) (uuid.UUID, error) {
	ts := newTimestamp()
	trashID, err := e.sendFolderToTrashAt(ctx, folder, trashFolderHint, ts)
	err = e.retryOrFail(ctx, err, &pendingOp{kind: opTrashFolder, folder: folder.Clone(), target: trashFolderHint, timestamp: ts})
	if err != nil {
		return uuid.Nil, err
	}
	if trashID == uuid.Nil {
		// queued for retry; the hint is the best answer available
		trashID = trashFolderHint
	}
	return trashID, nil
}

func (e *Engine) sendFolderToTrashAt(ctx context.Context, folder *proto.Folder, trashFolderHint uuid.UUID, ts int64) (uuid.UUID, error) {
	if trashFolderHint != uuid.Nil {
		return trashFolderHint, e.moveFolderAt(ctx, folder, trashFolderHint, ts)
	}

	trashFolder, err := e.FindFolderForType(ctx, folder.Owner, proto.FolderTypeTrash)
	if err != nil {
		return uuid.Nil, proto.StorageError(err, "trash folder could not be found for user %v", folder.Owner)
	}
	return trashFolder.ID, e.moveFolderAt(ctx, folder, trashFolder.ID, ts)
}

// FindFolderForType returns the owner's top level or root folder of
// the given type. The retired root type code matches the current one.
func (e *Engine) FindFolderForType(ctx context.Context, ownerID uuid.UUID, folderType int16) (*proto.Folder, error) {
	index, err := e.folderIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	for _, folder := range index {
		if folder.Level != proto.LevelTopLevel && folder.Level != proto.LevelRoot {
			continue
		}
		if folder.Type == folderType {
			return folder, nil
		}
		if folderType == proto.FolderTypeRoot && folder.Type == proto.FolderTypeOldRoot {
			return folder, nil
		}
	}
	return nil, proto.StorageError(nil, "unable to find a suitable folder for type %d and user %v", folderType, ownerID)
}

// FindTopLevelFolderFor walks the parentage chain of folderID and
// returns its top level or root ancestor, or nil when the chain never
// reaches one.
func (e *Engine) FindTopLevelFolderFor(ctx context.Context, ownerID, folderID uuid.UUID) (*proto.Folder, error) {
	index, err := e.folderIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	current := folderID
	for current != uuid.Nil {
		folder, ok := index[current]
		if !ok {
			break
		}
		if folder.Level == proto.LevelTopLevel || folder.Level == proto.LevelRoot {
			return folder, nil
		}
		current = folder.ParentID
	}
	return nil, nil
}

// descendants is the result of a tree collection below one folder:
// every reachable folder and item, plus the subset sitting directly in
// the starting folder.
type descendants struct {
	allFolders []uuid.UUID
	allItems   []uuid.UUID

	rootFolders map[uuid.UUID]struct{}
	rootItems   map[uuid.UUID]struct{}
}

// collectDescendants walks the tree below folderID using an explicit
// stack over the pre-loaded owner index. Missing or corrupt folders
// are logged and skipped; subfolders whose index parent disagrees with
// the visited parent are skipped so a partial move cannot widen a
// purge; an owner change mid-tree aborts the walk.
func (e *Engine) collectDescendants(ctx context.Context, folderID, ownerID uuid.UUID) (*descendants, string, error) {
	span := trace.SpanFromContextSafe(ctx)

	index, err := e.folderIndex(ctx, ownerID)
	if err != nil {
		return nil, "", err
	}

	set := &descendants{
		rootFolders: make(map[uuid.UUID]struct{}),
		rootItems:   make(map[uuid.UUID]struct{}),
	}
	var debugList strings.Builder

	type frame struct {
		id     uuid.UUID
		isRoot bool
	}
	stack := []frame{{id: folderID, isRoot: true}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		folder, err := e.GetFolder(ctx, top.id)
		if err != nil {
			if errors.Is(err, proto.ErrObjectMissing) {
				span.Warnf("found missing folder with subfolder index remaining in parent, inventory may need subfolder index maintenance")
				continue
			}
			if errors.Is(err, errCorrupt) {
				span.Warnf("found corrupt folder with subfolder index remaining in parent, user inventory needs subfolder index maintenance")
				continue
			}
			return nil, "", err
		}

		for _, item := range folder.Items {
			set.allItems = append(set.allItems, item.ID)
			if top.isRoot {
				set.rootItems[item.ID] = struct{}{}
			}
			fmt.Fprintf(&debugList, "I %v %s\n", item.ID, item.Name)
		}

		for _, sub := range folder.SubFolders {
			if sub.Owner != ownerID {
				return nil, "", fmt.Errorf(
					"changed owner found during recursive folder collection, folder: %v, expected owner: %v, found owner: %v: %w",
					sub.ID, ownerID, sub.Owner, proto.ErrUnrecoverable)
			}
			if !subfolderIsConsistent(sub.ID, folder.ID, index) {
				span.Warnf("not including folder %v in collection, the subfolder index is inconsistent with the folder index", sub.ID)
				continue
			}

			fmt.Fprintf(&debugList, "F %v %s\n", sub.ID, sub.Name)
			set.allFolders = append(set.allFolders, sub.ID)
			if top.isRoot {
				set.rootFolders[sub.ID] = struct{}{}
			}
			stack = append(stack, frame{id: sub.ID})
		}
	}

	return set, debugList.String(), nil
}

// subfolderIsConsistent reports whether the owner index agrees that
// subfolderID is a child of parentID.
func subfolderIsConsistent(subfolderID, parentID uuid.UUID, index map[uuid.UUID]*proto.Folder) bool {
	indexed, ok := index[subfolderID]
	return ok && indexed.ParentID == parentID
}

// PurgeFolderContents removes everything inside the folder but keeps
// the folder itself.
func (e *Engine) PurgeFolderContents(ctx context.Context, folder *proto.Folder) error {
	ts := newTimestamp()
	err := e.purgeFolderContentsAt(ctx, folder, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opPurgeFolderContents, folder: folder.Clone(), timestamp: ts})
}

func (e *Engine) purgeFolderContentsAt(ctx context.Context, folder *proto.Folder, ts int64) error {
	if folder.ID == uuid.Nil {
		return fmt.Errorf("refusing to allow the purge of the inventory zero root folder: %w", proto.ErrUnrecoverable)
	}
	span := trace.SpanFromContextSafe(ctx)

	set, debugList, err := e.collectDescendants(ctx, folder.ID, folder.Owner)
	if err != nil {
		return err
	}
	span.Debugf("about to purge from %s %v\n objects:\n%s", folder.Name, folder.ID, debugList)

	muts := make(columnar.RowMutations)

	// deleting the folder rows wipes their contents; items directly in
	// the purged folder are removed from its row one by one
	for _, fid := range set.allFolders {
		singleFolderDeletionMutations(muts, folder.Owner, fid, ts)
	}
	for itemID := range set.rootItems {
		itemDeletionMutations(muts, itemID, folder.ID, ts, false)
	}
	for subID := range set.rootFolders {
		subfolderEntryDeletion(muts, folder.ID, subID, ts)
	}
	for _, itemID := range set.allItems {
		itemParentDeletionMutations(muts, itemID, ts)
	}
	versionIncrementMutation(muts, folder.ID)

	return e.client.Mutate(ctx, muts)
}

// PurgeFolder removes the folder, its index entries and every
// descendant folder and item.
func (e *Engine) PurgeFolder(ctx context.Context, folder *proto.Folder) error {
	ts := newTimestamp()
	err := e.purgeFolderAt(ctx, folder, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opPurgeFolder, folder: folder.Clone(), timestamp: ts})
}

func (e *Engine) purgeFolderAt(ctx context.Context, folder *proto.Folder, ts int64) error {
	if folder.ID == uuid.Nil {
		return fmt.Errorf("refusing to allow the deletion of the inventory zero root folder: %w", proto.ErrUnrecoverable)
	}
	span := trace.SpanFromContextSafe(ctx)

	set, debugList, err := e.collectDescendants(ctx, folder.ID, folder.Owner)
	if err != nil {
		return err
	}
	span.Debugf("about to purge from %s %v\n objects:\n%s", folder.Name, folder.ID, debugList)

	muts := make(columnar.RowMutations)

	for _, fid := range set.allFolders {
		singleFolderDeletionMutations(muts, folder.Owner, fid, ts)
	}
	singleFolderDeletionMutations(muts, folder.Owner, folder.ID, ts)
	subfolderEntryDeletion(muts, folder.ParentID, folder.ID, ts)
	for _, itemID := range set.allItems {
		itemParentDeletionMutations(muts, itemID, ts)
	}
	if folder.ParentID != uuid.Nil {
		versionIncrementMutation(muts, folder.ParentID)
	}

	return e.client.Mutate(ctx, muts)
}

// PurgeEmptyFolder removes a folder the caller knows is empty, without
// the tree walk. A non-empty folder is refused.
func (e *Engine) PurgeEmptyFolder(ctx context.Context, folder *proto.Folder) error {
	ts := newTimestamp()
	err := e.purgeEmptyFolderAt(ctx, folder, ts)
	return e.retryOrFail(ctx, err, &pendingOp{kind: opPurgeEmptyFolder, folder: folder.Clone(), timestamp: ts})
}

func (e *Engine) purgeEmptyFolderAt(ctx context.Context, folder *proto.Folder, ts int64) error {
	if len(folder.Items) != 0 || len(folder.SubFolders) != 0 {
		return fmt.Errorf("refusing to purge folder %v as empty, it is not empty: %w", folder.ID, proto.ErrUnrecoverable)
	}
	if folder.ID == uuid.Nil {
		return fmt.Errorf("refusing to allow the deletion of the inventory zero root folder: %w", proto.ErrUnrecoverable)
	}

	muts := make(columnar.RowMutations)
	singleFolderDeletionMutations(muts, folder.Owner, folder.ID, ts)
	subfolderEntryDeletion(muts, folder.ParentID, folder.ID, ts)
	if folder.ParentID != uuid.Nil {
		versionIncrementMutation(muts, folder.ParentID)
	}

	return e.client.Mutate(ctx, muts)
}

// PurgeFolders purges each folder in turn with one shared timestamp.
func (e *Engine) PurgeFolders(ctx context.Context, folders []*proto.Folder) error {
	ts := newTimestamp()
	err := e.purgeFoldersAt(ctx, folders, ts)

	snapshot := make([]*proto.Folder, len(folders))
	for i, folder := range folders {
		snapshot[i] = folder.Clone()
	}
	return e.retryOrFail(ctx, err, &pendingOp{kind: opPurgeFolders, folders: snapshot, timestamp: ts})
}

func (e *Engine) purgeFoldersAt(ctx context.Context, folders []*proto.Folder, ts int64) error {
	for _, folder := range folders {
		if err := e.purgeFolderAt(ctx, folder, ts); err != nil {
			return err
		}
	}
	return nil
}
