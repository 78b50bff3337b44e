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

package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
)

const (
	defaultCF = "default"

	RocksdbKVType = KVType("rocksdb")
	MemoryKVType  = KVType("memory")
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrKVTypeNotFound = errors.New("kv type not found")
)

type (
	CF     string
	KVType string

	// Store is an ordered key-value engine with column families. Merge is
	// an additive counter update: values written through Merge accumulate
	// as unsigned 64 bit big-endian integers, and a batch containing both
	// regular writes and merges applies atomically.
	Store interface {
		CreateColumn(col CF) error
		GetAllColumns() []CF
		CheckColumns(col CF) bool
		GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error)
		SetRaw(ctx context.Context, col CF, key []byte, value []byte) error
		Delete(ctx context.Context, col CF, key []byte) error
		List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader
		NewWriteBatch() WriteBatch
		Write(ctx context.Context, batch WriteBatch) error
		FlushCF(ctx context.Context, col CF) error
		Stats(ctx context.Context) (Stats, error)
		Close()
	}

	// ListReader walks keys in ascending order. ReadNextCopy returns
	// (nil, nil, nil) once the prefix range is exhausted.
	ListReader interface {
		ReadNextCopy() (key []byte, value []byte, err error)
		Close()
	}

	WriteBatch interface {
		Put(col CF, key, value []byte)
		Merge(col CF, key, value []byte)
		Delete(col CF, key []byte)
		DeleteRange(col CF, startKey, endKey []byte)
		Close()
	}

	Stats struct {
		Used        uint64
		MemoryUsage MemoryUsage
	}
	MemoryUsage struct {
		BlockCacheUsage     uint64
		IndexAndFilterUsage uint64
		MemtableUsage       uint64
		BlockPinnedUsage    uint64
		Total               uint64
	}
	Option struct {
		Sync                 bool
		ColumnFamily         []CF `json:"column_family"`
		CreateIfMissing      bool
		BlockSize            int
		BlockCache           uint64
		WriteBufferSize      int
		MaxWriteBufferNumber int
		MaxBackgroundJobs    int
		MaxOpenFiles         int
		KeepLogFileNum       int
		MaxLogFileSize       int
	}
)

func NewKVStore(ctx context.Context, path string, kvType KVType, option *Option) (Store, error) {
	switch kvType {
	case RocksdbKVType:
		return newRocksdb(ctx, path, option)
	case MemoryKVType:
		return newMemStore(ctx, option)
	default:
		return nil, ErrKVTypeNotFound
	}
}

func (cf CF) String() string {
	return string(cf)
}

// EncodeCounter renders a counter value in the on-disk merge format.
func EncodeCounter(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// DecodeCounter parses a stored counter. Values that are not exactly
// 8 bytes decode as zero so that a damaged cell behaves like a missing
// one instead of failing every read of its row.
func DecodeCounter(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
