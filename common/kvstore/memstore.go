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
	"bytes"
	"context"
	"sync"

	"github.com/cubefs/cubefs/util/btree"
)

const memBtreeDegree = 32

// memStore is a pure in-memory Store used by tests and by embedded
// deployments that do not need persistence. It honors the same merge
// and batch-atomicity contract as the rocksdb engine.
type (
	memStore struct {
		trees map[CF]*btree.BTree
		lock  sync.RWMutex
	}
	memItem struct {
		key   []byte
		value []byte
	}
	memOp struct {
		kind   int
		col    CF
		key    []byte
		value  []byte
		endKey []byte
	}
	memWriteBatch struct {
		s   *memStore
		ops []memOp
	}
	memListReader struct {
		keys   [][]byte
		values [][]byte
		index  int
	}
)

const (
	memOpPut = iota
	memOpMerge
	memOpDelete
	memOpDeleteRange
)

func (m *memItem) Less(than btree.Item) bool {
	return bytes.Compare(m.key, than.(*memItem).key) < 0
}

func (m *memItem) Copy() btree.Item {
	return &memItem{key: m.key, value: m.value}
}

func newMemStore(ctx context.Context, option *Option) (Store, error) {
	s := &memStore{trees: make(map[CF]*btree.BTree)}
	s.trees[defaultCF] = btree.New(memBtreeDegree)
	for _, col := range option.ColumnFamily {
		s.trees[col] = btree.New(memBtreeDegree)
	}
	return s, nil
}

func (s *memStore) CreateColumn(col CF) error {
	s.lock.Lock()
	if s.trees[col] == nil {
		s.trees[col] = btree.New(memBtreeDegree)
	}
	s.lock.Unlock()
	return nil
}

func (s *memStore) GetAllColumns() (ret []CF) {
	s.lock.RLock()
	for col := range s.trees {
		ret = append(ret, col)
	}
	s.lock.RUnlock()
	return
}

func (s *memStore) CheckColumns(col CF) bool {
	if col == "" {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.trees[col]
	return ok
}

func (s *memStore) GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	got := s.tree(col).Get(&memItem{key: key})
	if got == nil {
		return nil, ErrNotFound
	}
	stored := got.(*memItem).value
	value := make([]byte, len(stored))
	copy(value, stored)
	return value, nil
}

func (s *memStore) SetRaw(ctx context.Context, col CF, key []byte, value []byte) error {
	s.lock.Lock()
	s.put(col, key, value)
	s.lock.Unlock()
	return nil
}

func (s *memStore) Delete(ctx context.Context, col CF, key []byte) error {
	s.lock.Lock()
	s.tree(col).Delete(&memItem{key: key})
	s.lock.Unlock()
	return nil
}

// List snapshots the matching range at call time, so a reader is not
// affected by writes that land while the caller drains it.
func (s *memStore) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	start := prefix
	if len(marker) > 0 {
		start = marker
	}

	lr := &memListReader{}
	s.lock.RLock()
	s.tree(col).AscendGreaterOrEqual(&memItem{key: start}, func(i btree.Item) bool {
		item := i.(*memItem)
		if prefix != nil && !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		key := make([]byte, len(item.key))
		value := make([]byte, len(item.value))
		copy(key, item.key)
		copy(value, item.value)
		lr.keys = append(lr.keys, key)
		lr.values = append(lr.values, value)
		return true
	})
	s.lock.RUnlock()
	return lr
}

func (s *memStore) NewWriteBatch() WriteBatch {
	return &memWriteBatch{s: s}
}

func (s *memStore) Write(ctx context.Context, batch WriteBatch) error {
	_batch := batch.(*memWriteBatch)
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, op := range _batch.ops {
		switch op.kind {
		case memOpPut:
			s.put(op.col, op.key, op.value)
		case memOpMerge:
			current := uint64(0)
			if got := s.tree(op.col).Get(&memItem{key: op.key}); got != nil {
				current = DecodeCounter(got.(*memItem).value)
			}
			s.put(op.col, op.key, EncodeCounter(current+DecodeCounter(op.value)))
		case memOpDelete:
			s.tree(op.col).Delete(&memItem{key: op.key})
		case memOpDeleteRange:
			tree := s.tree(op.col)
			var doomed [][]byte
			tree.AscendGreaterOrEqual(&memItem{key: op.key}, func(i btree.Item) bool {
				item := i.(*memItem)
				if bytes.Compare(item.key, op.endKey) >= 0 {
					return false
				}
				doomed = append(doomed, item.key)
				return true
			})
			for _, key := range doomed {
				tree.Delete(&memItem{key: key})
			}
		}
	}
	return nil
}

func (s *memStore) FlushCF(ctx context.Context, col CF) error {
	return nil
}

func (s *memStore) Stats(ctx context.Context) (Stats, error) {
	var used uint64
	s.lock.RLock()
	for _, tree := range s.trees {
		tree.Ascend(func(i btree.Item) bool {
			item := i.(*memItem)
			used += uint64(len(item.key) + len(item.value))
			return true
		})
	}
	s.lock.RUnlock()
	return Stats{Used: used, MemoryUsage: MemoryUsage{MemtableUsage: used, Total: used}}, nil
}

func (s *memStore) Close() {
	s.lock.Lock()
	s.trees = make(map[CF]*btree.BTree)
	s.lock.Unlock()
}

func (s *memStore) tree(col CF) *btree.BTree {
	if col == "" {
		col = defaultCF
	}
	tree, ok := s.trees[col]
	if !ok {
		panic("col:" + col.String() + " not exist")
	}
	return tree
}

func (s *memStore) put(col CF, key, value []byte) {
	k := make([]byte, len(key))
	v := make([]byte, len(value))
	copy(k, key)
	copy(v, value)
	s.tree(col).ReplaceOrInsert(&memItem{key: k, value: v})
}

func (b *memWriteBatch) Put(col CF, key, value []byte) {
	b.ops = append(b.ops, memOp{kind: memOpPut, col: col, key: key, value: value})
}

func (b *memWriteBatch) Merge(col CF, key, value []byte) {
	b.ops = append(b.ops, memOp{kind: memOpMerge, col: col, key: key, value: value})
}

func (b *memWriteBatch) Delete(col CF, key []byte) {
	b.ops = append(b.ops, memOp{kind: memOpDelete, col: col, key: key})
}

func (b *memWriteBatch) DeleteRange(col CF, startKey, endKey []byte) {
	b.ops = append(b.ops, memOp{kind: memOpDeleteRange, col: col, key: startKey, endKey: endKey})
}

func (b *memWriteBatch) Close() {
	b.ops = nil
}

func (lr *memListReader) ReadNextCopy() (key []byte, value []byte, err error) {
	if lr.index >= len(lr.keys) {
		return nil, nil, nil
	}
	key = lr.keys[lr.index]
	value = lr.values[lr.index]
	lr.index++
	return key, value, nil
}

func (lr *memListReader) Close() {}
