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
	"fmt"

	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/proto"
)

// folderMutationSelector narrows which folder columns a storage
// mutation touches. A plain save must not rewrite the parent pointer
// (a concurrent move would be undone) and a parent change must not
// rewrite the descriptive columns.
type folderMutationSelector int

const (
	mutateFolderAll folderMutationSelector = iota
	mutateFolderAllButParent
	mutateFolderParentOnly
)

// checkBasicFolderIntegrity rejects folders that would corrupt the
// tree if stored.
func checkBasicFolderIntegrity(folder *proto.Folder) error {
	if folder.ID == uuid.Nil {
		return fmt.Errorf("not creating zero UUID folder: %w", proto.ErrUnrecoverable)
	}
	if folder.ParentID == folder.ID {
		return fmt.Errorf("not creating a folder with a parent set to itself: %w", proto.ErrUnrecoverable)
	}
	if folder.ParentID == uuid.Nil && folder.Level != proto.LevelRoot {
		return fmt.Errorf("not storing a folder with parent set to ZERO that is not a root level folder: %w", proto.ErrUnrecoverable)
	}
	return nil
}

// folderStorageMutations appends the writes that persist folder state:
// the properties super column of the folder's own row, a version
// increment, and the folder's entry in the owner index. The selector
// picks which columns are included; newParent is only consulted when
// the parent pointer is being written.
func folderStorageMutations(muts columnar.RowMutations, folder *proto.Folder,
	sel folderMutationSelector, newParent uuid.UUID, ts int64,
) {
	folderRow := encodeUUID(folder.ID)
	ownerRow := encodeUUID(folder.Owner)

	if sel == mutateFolderAll || sel == mutateFolderAllButParent {
		muts.Add(folderRow, cfFolders,
			columnar.PutSubColumn(superProperties, colName, []byte(folder.Name), ts),
			columnar.PutSubColumn(superProperties, colType, encodeInt32(int32(folder.Type)), ts),
			columnar.PutSubColumn(superProperties, colUserID, encodeUUID(folder.Owner), ts),
			columnar.PutSubColumn(superProperties, colLevel, encodeByte(uint8(folder.Level)), ts),
		)
		muts.Add(ownerRow, cfUserFolders,
			columnar.PutSubColumn(folderRow, colName, []byte(folder.Name), ts),
			columnar.PutSubColumn(folderRow, colType, encodeInt32(int32(folder.Type)), ts),
			columnar.PutSubColumn(folderRow, colLevel, encodeByte(uint8(folder.Level)), ts),
		)
	}
	if sel == mutateFolderAll || sel == mutateFolderParentOnly {
		muts.Add(folderRow, cfFolders,
			columnar.PutSubColumn(superProperties, colParent, encodeUUID(newParent), ts))
		muts.Add(ownerRow, cfUserFolders,
			columnar.PutSubColumn(folderRow, colParentFolder, encodeUUID(newParent), ts))
	}

	versionIncrementMutation(muts, folder.ID)
}

// versionIncrementMutation bumps a folder's version counter by one.
func versionIncrementMutation(muts columnar.RowMutations, folderID uuid.UUID) {
	muts.Add(encodeUUID(folderID), cfFolderVersions, columnar.AddCounter(colCount, 1))
}

// parentUpdateForSubfolder writes the child's entry into the parent's
// sub_folders super column. The zero folder is never mutated.
func parentUpdateForSubfolder(muts columnar.RowMutations, child *proto.Folder, parentID uuid.UUID, ts int64) {
	if parentID == uuid.Nil {
		return
	}
	entry := subFolderEntry{Name: child.Name, Type: child.Type}
	muts.Add(encodeUUID(parentID), cfFolders,
		columnar.PutSubColumn(superSubFolders, encodeUUID(child.ID), entry.encode(), ts))
}

// subfolderIndexDeletion removes the child's entry from the old
// parent's sub_folders super column and bumps the old parent version.
func subfolderIndexDeletion(muts columnar.RowMutations, oldParentID, childID uuid.UUID, ts int64) {
	muts.Add(encodeUUID(oldParentID), cfFolders,
		columnar.DeleteColumns(superSubFolders, [][]byte{encodeUUID(childID)}, ts))
	versionIncrementMutation(muts, oldParentID)
}

// subfolderEntryDeletion removes one child entry from a parent's
// sub_folders super column without the version bump.
func subfolderEntryDeletion(muts columnar.RowMutations, parentID, childID uuid.UUID, ts int64) {
	muts.Add(encodeUUID(parentID), cfFolders,
		columnar.DeleteColumns(superSubFolders, [][]byte{encodeUUID(childID)}, ts))
}

// singleFolderDeletionMutations removes one folder outright: its whole
// row, its entry in the owner index and its version counter row.
func singleFolderDeletionMutations(muts columnar.RowMutations, ownerID, folderID uuid.UUID, ts int64) {
	folderRow := encodeUUID(folderID)
	muts.Add(folderRow, cfFolders, columnar.DeleteRow(ts))
	muts.Add(encodeUUID(ownerID), cfUserFolders, columnar.DeleteSuper(folderRow, ts))
	muts.Add(folderRow, cfFolderVersions, columnar.DeleteRow(ts))
}

// itemStorageMutations writes every item column into the item's super
// column of the containing folder row.
func itemStorageMutations(muts columnar.RowMutations, item *proto.Item, folderID uuid.UUID, ts int64) {
	itemSuper := encodeUUID(item.ID)
	muts.Add(encodeUUID(folderID), cfFolders,
		columnar.PutSubColumn(itemSuper, colName, []byte(item.Name), ts),
		columnar.PutSubColumn(itemSuper, colDescription, []byte(item.Description), ts),
		columnar.PutSubColumn(itemSuper, colCreationDate, encodeInt32(item.CreationDate), ts),
		columnar.PutSubColumn(itemSuper, colCreatorID, encodeUUID(item.CreatorID), ts),
		columnar.PutSubColumn(itemSuper, colOwnerID, encodeUUID(item.Owner), ts),
		columnar.PutSubColumn(itemSuper, colAssetID, encodeUUID(item.AssetID), ts),
		columnar.PutSubColumn(itemSuper, colAssetType, encodeInt32(item.AssetType), ts),
		columnar.PutSubColumn(itemSuper, colInvType, encodeInt32(item.InvType), ts),
		columnar.PutSubColumn(itemSuper, colFlags, encodeUint32(item.Flags), ts),
		columnar.PutSubColumn(itemSuper, colGroupOwned, encodeBool(item.GroupOwned), ts),
		columnar.PutSubColumn(itemSuper, colGroupID, encodeUUID(item.GroupID), ts),
		columnar.PutSubColumn(itemSuper, colGroupPerms, encodeUint32(item.GroupPermissions), ts),
		columnar.PutSubColumn(itemSuper, colCurrentPerms, encodeUint32(item.CurrentPermissions), ts),
		columnar.PutSubColumn(itemSuper, colBasePerms, encodeUint32(item.BasePermissions), ts),
		columnar.PutSubColumn(itemSuper, colNextPerms, encodeUint32(item.NextPermissions), ts),
		columnar.PutSubColumn(itemSuper, colEveryonePerms, encodeUint32(item.EveryonePermissions), ts),
		columnar.PutSubColumn(itemSuper, colSalePrice, encodeInt32(item.SalePrice), ts),
		columnar.PutSubColumn(itemSuper, colSaleType, encodeByte(item.SaleType), ts),
	)
	versionIncrementMutation(muts, folderID)
}

// itemParentStorageMutations rewrites the item -> folder index entry.
func itemParentStorageMutations(muts columnar.RowMutations, itemID, folderID uuid.UUID, ts int64) {
	muts.Add(encodeUUID(itemID), cfItemParents,
		columnar.PutColumn(colParent, encodeUUID(folderID), ts))
}

// itemDeletionMutations removes the item's super column from its
// folder row, optionally bumping the folder version. Bulk folder
// purges skip the bump because the purged folder gets a single
// increment of its own.
func itemDeletionMutations(muts columnar.RowMutations, itemID, folderID uuid.UUID, ts int64, withFolderVersionInc bool) {
	muts.Add(encodeUUID(folderID), cfFolders, columnar.DeleteSuper(encodeUUID(itemID), ts))
	if withFolderVersionInc {
		versionIncrementMutation(muts, folderID)
	}
}

// itemParentDeletionMutations drops the item -> folder index row.
func itemParentDeletionMutations(muts columnar.RowMutations, itemID uuid.UUID, ts int64) {
	muts.Add(encodeUUID(itemID), cfItemParents, columnar.DeleteRow(ts))
}
