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
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/proto"
)

// parsedFolderRow sorts a full folder row into its three kinds of super
// columns: the properties block, the subfolder index and one entry per
// contained item.
type parsedFolderRow struct {
	properties *columnar.SuperColumn
	subFolders *columnar.SuperColumn
	items      []*columnar.SuperColumn
}

func parseFolderRow(entries []columnar.ColumnOrSuper) parsedFolderRow {
	var parsed parsedFolderRow
	for _, entry := range entries {
		if entry.Super == nil {
			continue
		}
		switch {
		case parsed.properties == nil && bytes.Equal(entry.Super.Name, superProperties):
			parsed.properties = entry.Super
		case parsed.subFolders == nil && bytes.Equal(entry.Super.Name, superSubFolders):
			parsed.subFolders = entry.Super
		default:
			parsed.items = append(parsed.items, entry.Super)
		}
	}
	return parsed
}

// decodeFolderProperties builds folder attributes from the properties
// super column of the folder's own row.
func decodeFolderProperties(folderID uuid.UUID, props *columnar.SuperColumn) (*proto.Folder, error) {
	cols := indexColumnsByName(props.Columns)
	for _, required := range [][]byte{colName, colType, colUserID, colLevel, colParent} {
		if _, ok := cols[string(required)]; !ok {
			return nil, fmt.Errorf("folder %v properties missing column %q: %w", folderID, required, errCorrupt)
		}
	}
	return &proto.Folder{
		ID:       folderID,
		Owner:    decodeUUID(cols[string(colUserID)]),
		ParentID: decodeUUID(cols[string(colParent)]),
		Name:     string(cols[string(colName)]),
		Type:     int16(decodeInt32(cols[string(colType)])),
		Level:    proto.FolderLevel(decodeByte(cols[string(colLevel)])),
	}, nil
}

// decodeIndexedFolder builds folder attributes from one super column of
// the owner's folder index row. A missing column means the index entry
// is corrupt; the caller decides whether that is fatal.
func decodeIndexedFolder(ownerID uuid.UUID, super *columnar.SuperColumn) (*proto.Folder, error) {
	folderID := decodeUUID(super.Name)
	cols := indexColumnsByName(super.Columns)
	for _, required := range [][]byte{colName, colType, colLevel, colParentFolder} {
		if _, ok := cols[string(required)]; !ok {
			return nil, fmt.Errorf("index entry for folder %v missing column %q: %w", folderID, required, errCorrupt)
		}
	}
	return &proto.Folder{
		ID:       folderID,
		Owner:    ownerID,
		ParentID: decodeUUID(cols[string(colParentFolder)]),
		Name:     string(cols[string(colName)]),
		Type:     int16(decodeInt32(cols[string(colType)])),
		Level:    proto.FolderLevel(decodeByte(cols[string(colLevel)])),
	}, nil
}

// decodeSubFolderStub turns one sub_folders column into the stub the
// parent folder carries for that child.
func decodeSubFolderStub(owner uuid.UUID, col columnar.Column) *proto.SubFolder {
	entry := decodeSubFolderEntry(col.Value)
	return &proto.SubFolder{
		ID:    decodeUUID(col.Name),
		Owner: owner,
		Name:  entry.Name,
		Type:  entry.Type,
	}
}

// decodeItem builds an item from its super column in a folder row. The
// row key is the containing folder, so Folder is supplied by the
// caller rather than stored per item.
func decodeItem(itemID, folderID uuid.UUID, cols []columnar.Column) *proto.Item {
	m := indexColumnsByName(cols)
	return &proto.Item{
		ID:     itemID,
		Folder: folderID,

		Name:        string(m[string(colName)]),
		Description: string(m[string(colDescription)]),
		Owner:       decodeUUID(m[string(colOwnerID)]),

		AssetID:   decodeUUID(m[string(colAssetID)]),
		AssetType: decodeInt32(m[string(colAssetType)]),
		InvType:   decodeInt32(m[string(colInvType)]),

		CreationDate: decodeInt32(m[string(colCreationDate)]),
		CreatorID:    decodeUUID(m[string(colCreatorID)]),

		BasePermissions:     decodeUint32(m[string(colBasePerms)]),
		CurrentPermissions:  decodeUint32(m[string(colCurrentPerms)]),
		NextPermissions:     decodeUint32(m[string(colNextPerms)]),
		EveryonePermissions: decodeUint32(m[string(colEveryonePerms)]),
		GroupPermissions:    decodeUint32(m[string(colGroupPerms)]),

		GroupID:    decodeUUID(m[string(colGroupID)]),
		GroupOwned: decodeBool(m[string(colGroupOwned)]),

		SalePrice: decodeInt32(m[string(colSalePrice)]),
		SaleType:  decodeByte(m[string(colSaleType)]),

		Flags: decodeUint32(m[string(colFlags)]),
	}
}
