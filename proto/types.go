package proto

import (
	"github.com/google/uuid"
)

// FolderLevel describes where a folder sits in the owner's tree.
type FolderLevel uint8

const (
	LevelLeaf     FolderLevel = 0
	LevelTopLevel FolderLevel = 1
	LevelRoot     FolderLevel = 2
)

// Folder type codes. The stored value is a signed 16 bit enumeration; only
// the codes the engine itself needs to know about are named here.
const (
	FolderTypeNone    int16 = -1
	FolderTypeTexture int16 = 0
	FolderTypeRoot    int16 = 8
	// FolderTypeOldRoot is a retired root code still present in old rows.
	// Lookups for FolderTypeRoot treat it as equivalent.
	FolderTypeOldRoot int16 = 9
	FolderTypeTrash   int16 = 14
	FolderTypeGesture int16 = 20
)

// Folder is a node in a per-owner inventory tree. SubFolders carries
// lightweight stubs decoded from the subfolder index, never full child
// folders.
type Folder struct {
	ID       uuid.UUID
	Owner    uuid.UUID
	ParentID uuid.UUID
	Name     string
	Type     int16
	Level    FolderLevel

	// Version is derived from a backend-native counter and wraps modulo
	// 65535. Each mutation of the folder's own properties, parent pointer
	// or contents increments it by exactly 1.
	Version uint16

	Items      []*Item
	SubFolders []*SubFolder
}

// Clone returns an independent copy. Stub and item lists are copied
// element by element so the snapshot cannot be changed by the caller
// afterwards.
func (f *Folder) Clone() *Folder {
	c := *f
	if f.Items != nil {
		c.Items = make([]*Item, len(f.Items))
		for i, item := range f.Items {
			cp := *item
			c.Items[i] = &cp
		}
	}
	if f.SubFolders != nil {
		c.SubFolders = make([]*SubFolder, len(f.SubFolders))
		for i, sub := range f.SubFolders {
			cp := *sub
			c.SubFolders[i] = &cp
		}
	}
	return &c
}

// SubFolder is the stub a parent folder keeps for each of its children.
type SubFolder struct {
	ID    uuid.UUID
	Owner uuid.UUID
	Name  string
	Type  int16
}

// Item flag bits.
const (
	FlagGestureActive uint32 = 1
)

// Item is a leaf object contained in exactly one folder. The permission
// masks use the full unsigned 32 bit range; values that look negative when
// reinterpreted as signed are legitimate.
type Item struct {
	ID     uuid.UUID
	Owner  uuid.UUID
	Folder uuid.UUID

	Name        string
	Description string

	AssetID   uuid.UUID
	AssetType int32
	InvType   int32

	CreationDate int32
	CreatorID    uuid.UUID

	BasePermissions     uint32
	CurrentPermissions  uint32
	NextPermissions     uint32
	EveryonePermissions uint32
	GroupPermissions    uint32

	GroupID    uuid.UUID
	GroupOwned bool

	SalePrice int32
	SaleType  uint8

	Flags uint32
}

// Clone returns an independent copy of the item.
func (i *Item) Clone() *Item {
	c := *i
	return &c
}

// MigrationStatus is the per-user state consulted by the provider selector.
type MigrationStatus int

const (
	MigrationStatusNotMigrated MigrationStatus = iota
	MigrationStatusInProgress
	MigrationStatusMigrated
)

func (s MigrationStatus) String() string {
	switch s {
	case MigrationStatusNotMigrated:
		return "not_migrated"
	case MigrationStatusInProgress:
		return "in_progress"
	case MigrationStatusMigrated:
		return "migrated"
	default:
		return "unknown"
	}
}
