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

// Package inventory implements a hierarchical inventory storage engine
// over a wide-column backend. Folder rows hold a properties super
// column, a sub_folders super column and one super column per
// contained item; denormalized indexes map owner -> folders and
// item -> parent folder, and a counter family tracks folder versions.
package inventory

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
)

// Column families of the Inventory keyspace.
const (
	cfFolders        = "Folders"
	cfItemParents    = "ItemParents"
	cfUserFolders    = "UserFolders"
	cfActiveGestures = "UserActiveGestures"
	cfFolderVersions = "FolderVersions"
)

// ColumnFamilies lists every column family the engine touches, in the
// order they should be created on a fresh store.
func ColumnFamilies() []string {
	return []string{cfFolders, cfItemParents, cfUserFolders, cfActiveGestures, cfFolderVersions}
}

// Chunk sizes for wide-row retrieval. Large folders and indexes are
// read in slices of this many columns.
const (
	defaultIndexChunkSize    = 1024
	defaultVersionChunkSize  = 1024
	defaultContentsChunkSize = 512
)

// Well-known column and super column names.
var (
	superProperties = []byte("properties")
	superSubFolders = []byte("sub_folders")

	colName         = []byte("name")
	colType         = []byte("type")
	colUserID       = []byte("user_id")
	colLevel        = []byte("level")
	colParent       = []byte("parent")
	colParentFolder = []byte("parent_folder")
	colCount        = []byte("count")
)

// Item column names inside the per-item super column of a folder row.
var (
	colDescription    = []byte("description")
	colCreationDate   = []byte("creation_date")
	colCreatorID      = []byte("creator_id")
	colOwnerID        = []byte("owner_id")
	colAssetID        = []byte("asset_id")
	colAssetType      = []byte("asset_type")
	colInvType        = []byte("inventory_type")
	colFlags          = []byte("flags")
	colGroupOwned     = []byte("group_owned")
	colGroupID        = []byte("group_id")
	colGroupPerms     = []byte("group_permissions")
	colCurrentPerms   = []byte("current_permissions")
	colBasePerms      = []byte("base_permissions")
	colNextPerms      = []byte("next_permissions")
	colEveryonePerms  = []byte("everyone_permissions")
	colSalePrice      = []byte("sale_price")
	colSaleType       = []byte("sale_type")
)

// Folder versions wrap so they always fit a uint16 on the wire.
const versionModulus = 65535

func encodeUUID(id uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

func decodeUUID(b []byte) uuid.UUID {
	var id uuid.UUID
	if len(b) == 16 {
		copy(id[:], b)
	}
	return id
}

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func decodeInt32(b []byte) int32 {
	if len(b) != 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func decodeUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func encodeByte(v uint8) []byte {
	return []byte{v}
}

func decodeByte(b []byte) uint8 {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func decodeBool(b []byte) bool {
	return len(b) > 0 && b[0] != 0
}

// indexColumnsByName flattens a column list into a name-keyed map, the
// shape every row decoder works from. Later duplicates win, which
// matches slice ordering (there are none in practice).
func indexColumnsByName(cols []columnar.Column) map[string][]byte {
	m := make(map[string][]byte, len(cols))
	for _, col := range cols {
		m[string(col.Name)] = col.Value
	}
	return m
}
