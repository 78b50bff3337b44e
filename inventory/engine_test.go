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
	"testing"

	"github.com/cubefs/cubefs/blobstore/util/taskpool"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/common/kvstore"
	"github.com/halcyongrid/inventorydb/proto"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	store, err := kvstore.NewKVStore(context.TODO(), "", kvstore.MemoryKVType, &kvstore.Option{})
	require.NoError(t, err)
	cluster, err := columnar.NewKVCluster(store, ColumnFamilies())
	require.NoError(t, err)
	client := columnar.NewClient(cluster, proto.Keyspace, columnar.ConsistencyQuorum)
	return NewEngine(client, cfg)
}

func newTestFolder(owner, parent uuid.UUID, name string, folderType int16, level proto.FolderLevel) *proto.Folder {
	return &proto.Folder{
		ID:       uuid.New(),
		Owner:    owner,
		ParentID: parent,
		Name:     name,
		Type:     folderType,
		Level:    level,
	}
}

func newTestItem(owner, folder uuid.UUID, name string) *proto.Item {
	return &proto.Item{
		ID:     uuid.New(),
		Owner:  owner,
		Folder: folder,

		Name:        name,
		Description: "description of " + name,

		AssetID:   uuid.New(),
		AssetType: 5,
		InvType:   7,

		CreationDate: 1356998400,
		CreatorID:    owner,

		BasePermissions:     0xffffffff,
		CurrentPermissions:  0x7fffffff,
		NextPermissions:     0x00082000,
		EveryonePermissions: 0,
		GroupPermissions:    0x8000,

		GroupID: uuid.New(),

		SalePrice: 10,
		SaleType:  1,
	}
}

// newTestInventory creates a user with a root and a trash folder.
func newTestInventory(t *testing.T, e *Engine, owner uuid.UUID) (root, trash *proto.Folder) {
	ctx := context.TODO()
	root = newTestFolder(owner, uuid.Nil, "My Inventory", proto.FolderTypeRoot, proto.LevelRoot)
	require.NoError(t, e.CreateFolder(ctx, root))
	trash = newTestFolder(owner, root.ID, "Trash", proto.FolderTypeTrash, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, trash))
	return root, trash
}

func subfolderIDs(folder *proto.Folder) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(folder.SubFolders))
	for _, sub := range folder.SubFolders {
		ids = append(ids, sub.ID)
	}
	return ids
}

func TestEngine_CreateAndGetFolder(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()

	root := newTestFolder(owner, uuid.Nil, "My Inventory", proto.FolderTypeRoot, proto.LevelRoot)
	require.NoError(t, e.CreateFolder(ctx, root))

	got, err := e.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, root.ID, got.ID)
	require.Equal(t, owner, got.Owner)
	require.Equal(t, uuid.Nil, got.ParentID)
	require.Equal(t, "My Inventory", got.Name)
	require.Equal(t, proto.FolderTypeRoot, got.Type)
	require.Equal(t, proto.LevelRoot, got.Level)
	require.Equal(t, uint16(1), got.Version)
	require.Empty(t, got.Items)
	require.Empty(t, got.SubFolders)

	attrs, err := e.GetFolderAttributes(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, got.ID, attrs.ID)
	require.Equal(t, got.Version, attrs.Version)

	// the zero folder is never served
	_, err = e.GetFolder(ctx, uuid.Nil)
	require.ErrorIs(t, err, proto.ErrSecurity)
	_, err = e.GetFolderAttributes(ctx, uuid.Nil)
	require.ErrorIs(t, err, proto.ErrSecurity)

	_, err = e.GetFolder(ctx, uuid.New())
	require.ErrorIs(t, err, proto.ErrObjectMissing)
}

func TestEngine_CreateFolderIntegrity(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()

	zero := newTestFolder(owner, uuid.Nil, "bad", proto.FolderTypeNone, proto.LevelRoot)
	zero.ID = uuid.Nil
	require.ErrorIs(t, e.CreateFolder(ctx, zero), proto.ErrUnrecoverable)

	selfParent := newTestFolder(owner, uuid.Nil, "bad", proto.FolderTypeNone, proto.LevelLeaf)
	selfParent.ParentID = selfParent.ID
	require.ErrorIs(t, e.CreateFolder(ctx, selfParent), proto.ErrUnrecoverable)

	orphanLeaf := newTestFolder(owner, uuid.Nil, "bad", proto.FolderTypeNone, proto.LevelLeaf)
	require.ErrorIs(t, e.CreateFolder(ctx, orphanLeaf), proto.ErrUnrecoverable)
}

// The version counter advances by exactly 1 for every mutation of a
// folder's properties, parent pointer or contents.
func TestEngine_VersionMonotonicity(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	folder := newTestFolder(owner, root.ID, "Objects", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, folder))

	version := func(id uuid.UUID) uint16 {
		attrs, err := e.GetFolderAttributes(ctx, id)
		require.NoError(t, err)
		return attrs.Version
	}

	before := version(folder.ID)
	require.NoError(t, e.SaveFolder(ctx, folder))
	require.Equal(t, before+1, version(folder.ID))

	item := newTestItem(owner, folder.ID, "cube")
	before = version(folder.ID)
	require.NoError(t, e.CreateItem(ctx, item))
	require.Equal(t, before+1, version(folder.ID))

	before = version(folder.ID)
	require.NoError(t, e.SaveItem(ctx, item))
	require.Equal(t, before+1, version(folder.ID))

	beforeOld, beforeNew := version(folder.ID), version(root.ID)
	require.NoError(t, e.MoveItem(ctx, item, root.ID))
	require.Equal(t, beforeOld+1, version(folder.ID))
	require.Equal(t, beforeNew+1, version(root.ID))

	before = version(root.ID)
	require.NoError(t, e.PurgeItem(ctx, item))
	require.Equal(t, before+1, version(root.ID))
}

// Create root R, then A and B under it, then move B under A. A ends at
// version 2 listing only B; R takes an increment for each child gained
// or lost.
func TestEngine_FolderTreeScenario(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()

	r := newTestFolder(owner, uuid.Nil, "R", proto.FolderTypeRoot, proto.LevelRoot)
	require.NoError(t, e.CreateFolder(ctx, r))
	a := newTestFolder(owner, r.ID, "A", proto.FolderTypeNone, proto.LevelLeaf)
	require.NoError(t, e.CreateFolder(ctx, a))
	b := newTestFolder(owner, r.ID, "B", proto.FolderTypeNone, proto.LevelLeaf)
	require.NoError(t, e.CreateFolder(ctx, b))

	require.NoError(t, e.MoveFolder(ctx, b, a.ID))
	require.Equal(t, a.ID, b.ParentID)

	gotA, err := e.GetFolder(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{b.ID}, subfolderIDs(gotA))
	require.Equal(t, uint16(2), gotA.Version)

	// R: create (1), gained A (2), gained B (3), lost B (4)
	gotR, err := e.GetFolder(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a.ID}, subfolderIDs(gotR))
	require.Equal(t, uint16(4), gotR.Version)

	// the stub carries enough to render a listing
	require.Equal(t, "B", gotA.SubFolders[0].Name)
	require.Equal(t, b.Type, gotA.SubFolders[0].Type)
	require.Equal(t, owner, gotA.SubFolders[0].Owner)
}

func TestEngine_MoveFolderGuards(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	folder := newTestFolder(owner, root.ID, "Clothing", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, folder))
	attrsBefore, err := e.GetFolderAttributes(ctx, folder.ID)
	require.NoError(t, err)

	// same destination and zero destination are warned no-ops
	require.NoError(t, e.MoveFolder(ctx, folder, root.ID))
	require.NoError(t, e.MoveFolder(ctx, folder, uuid.Nil))
	attrsAfter, err := e.GetFolderAttributes(ctx, folder.ID)
	require.NoError(t, err)
	require.Equal(t, attrsBefore.Version, attrsAfter.Version)
	require.Equal(t, root.ID, folder.ParentID)

	// self-parenting can never be stored
	require.ErrorIs(t, e.MoveFolder(ctx, folder, folder.ID), proto.ErrUnrecoverable)
}

func TestEngine_SaveFolderRefreshesParentListing(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	folder := newTestFolder(owner, root.ID, "Old Name", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, folder))

	folder.Name = "New Name"
	require.NoError(t, e.SaveFolder(ctx, folder))

	gotRoot, err := e.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	for _, sub := range gotRoot.SubFolders {
		if sub.ID == folder.ID {
			require.Equal(t, "New Name", sub.Name)
			return
		}
	}
	t.Fatalf("folder %v not listed under root", folder.ID)
}

// Every folder in the skeleton must agree field for field with its own
// attributes read.
func TestEngine_SkeletonAgreement(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, trash := newTestInventory(t, e, owner)

	extra := newTestFolder(owner, root.ID, "Landmarks", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, extra))

	skeleton, err := e.GetInventorySkeleton(ctx, owner)
	require.NoError(t, err)
	require.Len(t, skeleton, 3)

	seen := map[uuid.UUID]bool{root.ID: false, trash.ID: false, extra.ID: false}
	for _, folder := range skeleton {
		attrs, err := e.GetFolderAttributes(ctx, folder.ID)
		require.NoError(t, err)
		require.Equal(t, attrs.ID, folder.ID)
		require.Equal(t, attrs.Owner, folder.Owner)
		require.Equal(t, attrs.ParentID, folder.ParentID)
		require.Equal(t, attrs.Name, folder.Name)
		require.Equal(t, attrs.Type, folder.Type)
		require.Equal(t, attrs.Level, folder.Level)
		require.Equal(t, attrs.Version, folder.Version)
		seen[folder.ID] = true
	}
	for id, ok := range seen {
		require.True(t, ok, "folder %v missing from skeleton", id)
	}
}

func TestEngine_SkeletonEmptyUser(t *testing.T) {
	e := newTestEngine(t, Config{})
	skeleton, err := e.GetInventorySkeleton(context.TODO(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, skeleton)
}

// The skeleton must return exactly N folders for widths straddling the
// index and version chunk boundaries.
func TestEngine_SkeletonPagination(t *testing.T) {
	const chunk = 4
	for _, width := range []int{1, chunk - 1, chunk, chunk + 1, 2*chunk - 1, 2 * chunk, 2*chunk + 1} {
		t.Run(fmt.Sprintf("width_%d", width), func(t *testing.T) {
			ctx := context.TODO()
			e := newTestEngine(t, Config{IndexChunkSize: chunk, VersionChunkSize: chunk - 1, ContentsChunkSize: chunk})
			owner := uuid.New()

			root := newTestFolder(owner, uuid.Nil, "root", proto.FolderTypeRoot, proto.LevelRoot)
			require.NoError(t, e.CreateFolder(ctx, root))
			for i := 1; i < width; i++ {
				folder := newTestFolder(owner, root.ID, fmt.Sprintf("folder-%03d", i), proto.FolderTypeNone, proto.LevelTopLevel)
				require.NoError(t, e.CreateFolder(ctx, folder))
			}

			skeleton, err := e.GetInventorySkeleton(ctx, owner)
			require.NoError(t, err)
			require.Len(t, skeleton, width)
			for _, folder := range skeleton {
				require.NotZero(t, folder.Version)
			}
		})
	}
}

// Folder contents are read chunked as well; a folder with more items
// than the contents chunk size must come back whole.
func TestEngine_WideFolderContents(t *testing.T) {
	const chunk = 4
	ctx := context.TODO()
	e := newTestEngine(t, Config{IndexChunkSize: chunk, VersionChunkSize: chunk, ContentsChunkSize: chunk})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	const width = 2*chunk + 1
	for i := 0; i < width; i++ {
		require.NoError(t, e.CreateItem(ctx, newTestItem(owner, root.ID, fmt.Sprintf("item-%03d", i))))
	}

	got, err := e.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, width)
}

func TestEngine_PurgeFolderCompleteness(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	// root -> top -> {inner -> {deepItem}, topItem}
	top := newTestFolder(owner, root.ID, "Objects", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, top))
	inner := newTestFolder(owner, top.ID, "Builds", proto.FolderTypeNone, proto.LevelLeaf)
	require.NoError(t, e.CreateFolder(ctx, inner))
	topItem := newTestItem(owner, top.ID, "top item")
	require.NoError(t, e.CreateItem(ctx, topItem))
	deepItem := newTestItem(owner, inner.ID, "deep item")
	require.NoError(t, e.CreateItem(ctx, deepItem))

	rootBefore, err := e.GetFolderAttributes(ctx, root.ID)
	require.NoError(t, err)

	require.NoError(t, e.PurgeFolder(ctx, top))

	skeleton, err := e.GetInventorySkeleton(ctx, owner)
	require.NoError(t, err)
	for _, folder := range skeleton {
		require.NotEqual(t, top.ID, folder.ID)
		require.NotEqual(t, inner.ID, folder.ID)
	}

	for _, probe := range []struct{ item, hint uuid.UUID }{
		{topItem.ID, uuid.Nil},
		{topItem.ID, top.ID},
		{deepItem.ID, uuid.Nil},
		{deepItem.ID, inner.ID},
	} {
		_, err := e.GetItem(ctx, probe.item, probe.hint)
		require.ErrorIs(t, err, proto.ErrObjectMissing)
	}

	// the purged folder's parent lost a child
	gotRoot, err := e.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	require.NotContains(t, subfolderIDs(gotRoot), top.ID)
	require.Equal(t, rootBefore.Version+1, gotRoot.Version)

	// the zero folder can never be purged
	require.ErrorIs(t, e.PurgeFolder(ctx, &proto.Folder{Owner: owner}), proto.ErrUnrecoverable)
}

func TestEngine_PurgeFolderContents(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	top := newTestFolder(owner, root.ID, "Objects", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, top))
	inner := newTestFolder(owner, top.ID, "Builds", proto.FolderTypeNone, proto.LevelLeaf)
	require.NoError(t, e.CreateFolder(ctx, inner))
	item := newTestItem(owner, top.ID, "doomed")
	require.NoError(t, e.CreateItem(ctx, item))

	before, err := e.GetFolderAttributes(ctx, top.ID)
	require.NoError(t, err)

	require.NoError(t, e.PurgeFolderContents(ctx, top))

	got, err := e.GetFolder(ctx, top.ID)
	require.NoError(t, err)
	require.Empty(t, got.Items)
	require.Empty(t, got.SubFolders)
	require.Equal(t, before.Version+1, got.Version)

	_, err = e.GetFolder(ctx, inner.ID)
	require.ErrorIs(t, err, proto.ErrObjectMissing)
	_, err = e.GetItem(ctx, item.ID, uuid.Nil)
	require.ErrorIs(t, err, proto.ErrObjectMissing)
}

func TestEngine_PurgeEmptyFolder(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	folder := newTestFolder(owner, root.ID, "Empty", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, folder))

	// the fast path refuses anything that visibly has contents
	notEmpty := folder.Clone()
	notEmpty.Items = []*proto.Item{newTestItem(owner, folder.ID, "present")}
	require.ErrorIs(t, e.PurgeEmptyFolder(ctx, notEmpty), proto.ErrUnrecoverable)

	require.NoError(t, e.PurgeEmptyFolder(ctx, folder))
	_, err := e.GetFolder(ctx, folder.ID)
	require.ErrorIs(t, err, proto.ErrObjectMissing)

	gotRoot, err := e.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	require.NotContains(t, subfolderIDs(gotRoot), folder.ID)
}

func TestEngine_PurgeFolders(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	var doomed []*proto.Folder
	for i := 0; i < 3; i++ {
		folder := newTestFolder(owner, root.ID, fmt.Sprintf("doomed-%d", i), proto.FolderTypeNone, proto.LevelTopLevel)
		require.NoError(t, e.CreateFolder(ctx, folder))
		doomed = append(doomed, folder)
	}

	require.NoError(t, e.PurgeFolders(ctx, doomed))
	for _, folder := range doomed {
		_, err := e.GetFolder(ctx, folder.ID)
		require.ErrorIs(t, err, proto.ErrObjectMissing)
	}
}

func TestEngine_ItemRoundtrip(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	item := newTestItem(owner, root.ID, "party hat")
	item.GroupOwned = true
	require.NoError(t, e.CreateItem(ctx, item))

	// via the index
	got, err := e.GetItem(ctx, item.ID, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, item, got)

	// via the hint
	got, err = e.GetItem(ctx, item.ID, root.ID)
	require.NoError(t, err)
	require.Equal(t, item, got)

	item.Name = "renamed hat"
	item.SalePrice = 250
	require.NoError(t, e.SaveItem(ctx, item))
	got, err = e.GetItem(ctx, item.ID, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, "renamed hat", got.Name)
	require.Equal(t, int32(250), got.SalePrice)
}

func TestEngine_GetItemMissingModes(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	// no index entry at all
	_, err := e.GetItem(ctx, uuid.New(), uuid.Nil)
	require.ErrorIs(t, err, proto.ErrObjectMissing)
	require.Contains(t, err.Error(), "not found in the index")

	// index points somewhere the item is not
	item := newTestItem(owner, root.ID, "drifted")
	require.NoError(t, e.CreateItem(ctx, item))
	other := newTestFolder(owner, root.ID, "Other", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, other))
	_, err = e.GetItem(ctx, item.ID, other.ID)
	require.ErrorIs(t, err, proto.ErrObjectMissing)
	require.Contains(t, err.Error(), "not found in its folder")
}

func TestEngine_GetItems(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	other := newTestFolder(owner, root.ID, "Other", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, other))

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		item := newTestItem(owner, root.ID, fmt.Sprintf("rooted-%d", i))
		require.NoError(t, e.CreateItem(ctx, item))
		ids = append(ids, item.ID)
	}
	inOther := newTestItem(owner, other.ID, "elsewhere")
	require.NoError(t, e.CreateItem(ctx, inOther))
	ids = append(ids, inOther.ID)

	items, err := e.GetItems(ctx, ids, true)
	require.NoError(t, err)
	require.Len(t, items, 4)

	// a missing id fails the strict variant and is skipped otherwise
	ids = append(ids, uuid.New())
	_, err = e.GetItems(ctx, ids, true)
	require.ErrorIs(t, err, proto.ErrObjectMissing)
	items, err = e.GetItems(ctx, ids, false)
	require.NoError(t, err)
	require.Len(t, items, 4)
}

func TestEngine_MoveItem(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	dest := newTestFolder(owner, root.ID, "Destination", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, dest))
	item := newTestItem(owner, root.ID, "wanderer")
	require.NoError(t, e.CreateItem(ctx, item))

	// zero destination is refused without touching anything
	require.ErrorIs(t, e.MoveItem(ctx, item, uuid.Nil), proto.ErrStorage)
	// same destination is a warned no-op
	require.NoError(t, e.MoveItem(ctx, item, root.ID))
	require.Equal(t, root.ID, item.Folder)

	require.NoError(t, e.MoveItem(ctx, item, dest.ID))
	require.Equal(t, dest.ID, item.Folder)

	got, err := e.GetItem(ctx, item.ID, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, dest.ID, got.Folder)

	oldFolder, err := e.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	for _, left := range oldFolder.Items {
		require.NotEqual(t, item.ID, left.ID)
	}
}

func TestEngine_PurgeItems(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	var items []*proto.Item
	for i := 0; i < 3; i++ {
		item := newTestItem(owner, root.ID, fmt.Sprintf("bulk-%d", i))
		require.NoError(t, e.CreateItem(ctx, item))
		items = append(items, item)
	}

	require.NoError(t, e.PurgeItems(ctx, items))
	for _, item := range items {
		_, err := e.GetItem(ctx, item.ID, uuid.Nil)
		require.ErrorIs(t, err, proto.ErrObjectMissing)
		_, err = e.GetItem(ctx, item.ID, root.ID)
		require.ErrorIs(t, err, proto.ErrObjectMissing)
	}
}

func TestEngine_CheckAndFixItemParentFolder(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	item := newTestItem(owner, uuid.Nil, "lost")
	require.NoError(t, e.CreateItem(ctx, item))
	require.Equal(t, root.ID, item.Folder)

	got, err := e.GetItem(ctx, item.ID, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, root.ID, got.Folder)
}

func TestEngine_Trash(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, trash := newTestInventory(t, e, owner)

	item := newTestItem(owner, root.ID, "trashed item")
	require.NoError(t, e.CreateItem(ctx, item))

	// without a hint the trash folder is located by type
	trashID, err := e.SendItemToTrash(ctx, item, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, trash.ID, trashID)
	require.Equal(t, trash.ID, item.Folder)

	folder := newTestFolder(owner, root.ID, "trashed folder", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, folder))
	trashID, err = e.SendFolderToTrash(ctx, folder, trash.ID)
	require.NoError(t, err)
	require.Equal(t, trash.ID, trashID)
	require.Equal(t, trash.ID, folder.ParentID)

	gotTrash, err := e.GetFolder(ctx, trash.ID)
	require.NoError(t, err)
	require.Contains(t, subfolderIDs(gotTrash), folder.ID)
	require.Len(t, gotTrash.Items, 1)
}

func TestEngine_FindFolderForType(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	_, trash := newTestInventory(t, e, owner)

	found, err := e.FindFolderForType(ctx, owner, proto.FolderTypeTrash)
	require.NoError(t, err)
	require.Equal(t, trash.ID, found.ID)

	_, err = e.FindFolderForType(ctx, owner, proto.FolderTypeGesture)
	require.ErrorIs(t, err, proto.ErrStorage)
}

// A root stored with the retired root type code still answers lookups
// for the current one.
func TestEngine_FindFolderForType_OldRoot(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()

	oldRoot := newTestFolder(owner, uuid.Nil, "My Inventory", proto.FolderTypeOldRoot, proto.LevelRoot)
	require.NoError(t, e.CreateFolder(ctx, oldRoot))

	found, err := e.FindFolderForType(ctx, owner, proto.FolderTypeRoot)
	require.NoError(t, err)
	require.Equal(t, oldRoot.ID, found.ID)
}

func TestEngine_FindTopLevelFolderFor(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	top := newTestFolder(owner, root.ID, "Objects", proto.FolderTypeNone, proto.LevelTopLevel)
	require.NoError(t, e.CreateFolder(ctx, top))
	leaf := newTestFolder(owner, top.ID, "Builds", proto.FolderTypeNone, proto.LevelLeaf)
	require.NoError(t, e.CreateFolder(ctx, leaf))

	found, err := e.FindTopLevelFolderFor(ctx, owner, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, top.ID, found.ID)

	// absence is a valid answer, not an error
	found, err = e.FindTopLevelFolderFor(ctx, owner, uuid.New())
	require.NoError(t, err)
	require.Nil(t, found)
}

// A folder whose version counter never landed reads as version 1; a
// present counter is authoritative.
func TestEngine_MissingVersionCounter(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	folderID := uuid.New()

	muts := make(columnar.RowMutations)
	muts.Add(encodeUUID(folderID), cfFolders,
		columnar.PutSubColumn(superProperties, colName, []byte("counterless"), 10),
		columnar.PutSubColumn(superProperties, colType, encodeInt32(int32(proto.FolderTypeNone)), 10),
		columnar.PutSubColumn(superProperties, colUserID, encodeUUID(owner), 10),
		columnar.PutSubColumn(superProperties, colLevel, encodeByte(uint8(proto.LevelRoot)), 10),
		columnar.PutSubColumn(superProperties, colParent, encodeUUID(uuid.Nil), 10),
	)
	require.NoError(t, e.PerformMutations(ctx, muts))

	got, err := e.GetFolder(ctx, folderID)
	require.NoError(t, err)
	require.Equal(t, uint16(1), got.Version)
	attrs, err := e.GetFolderAttributes(ctx, folderID)
	require.NoError(t, err)
	require.Equal(t, uint16(1), attrs.Version)

	muts = make(columnar.RowMutations)
	for i := 0; i < 5; i++ {
		versionIncrementMutation(muts, folderID)
	}
	require.NoError(t, e.PerformMutations(ctx, muts))
	got, err = e.GetFolder(ctx, folderID)
	require.NoError(t, err)
	require.Equal(t, uint16(5), got.Version)
}

// Corrupt owner index entries are skipped by reads instead of failing
// the whole skeleton.
func TestEngine_SkeletonSkipsCorruptIndexEntries(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	newTestInventory(t, e, owner)

	muts := make(columnar.RowMutations)
	muts.Add(encodeUUID(owner), cfUserFolders,
		columnar.PutSubColumn(encodeUUID(uuid.New()), colName, []byte("no other columns"), 10))
	require.NoError(t, e.PerformMutations(ctx, muts))

	skeleton, err := e.GetInventorySkeleton(ctx, owner)
	require.NoError(t, err)
	require.Len(t, skeleton, 2)
	for _, folder := range skeleton {
		require.NotEqual(t, "no other columns", folder.Name)
	}
}

func TestEngine_Gestures(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	var gestures []uuid.UUID
	for i := 0; i < 3; i++ {
		item := newTestItem(owner, root.ID, fmt.Sprintf("gesture-%d", i))
		item.AssetType = 21
		require.NoError(t, e.CreateItem(ctx, item))
		gestures = append(gestures, item.ID)
	}

	require.NoError(t, e.ActivateGestures(ctx, owner, gestures))
	ids, err := e.GetActiveGestureItemIDs(ctx, owner)
	require.NoError(t, err)
	require.ElementsMatch(t, gestures, ids)

	items, err := e.GetActiveGestureItems(ctx, owner)
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NoError(t, e.DeactivateGestures(ctx, owner, gestures[:2]))
	ids, err = e.GetActiveGestureItemIDs(ctx, owner)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, gestures[2], ids[0])
}

// Concurrent item creation into one folder: counter increments are
// backend-native and commutative, so the version must land at exactly
// one per create.
func TestEngine_ConcurrentItemCreates(t *testing.T) {
	ctx := context.TODO()
	e := newTestEngine(t, Config{})
	owner := uuid.New()
	root, _ := newTestInventory(t, e, owner)

	const workers = 8
	const perWorker = 4
	tp := taskpool.New(workers, workers)
	defer tp.Close()

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		tp.Run(func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				item := newTestItem(owner, root.ID, fmt.Sprintf("w%d-i%d", w, i))
				if err := e.CreateItem(ctx, item); err != nil {
					errs <- err
				}
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := e.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, workers*perWorker)
	require.Equal(t, uint16(1+workers*perWorker), got.Version)
}
