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

package columnar

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/halcyongrid/inventorydb/common/kvstore"
)

// kvCluster maps the wide-column model onto a column-family KV engine.
// Cell key layout: [rowLen:2][rowKey][superLen:2][super][columnName];
// plain columns use an empty super segment. Cell value layout:
// [timestamp:8 BE][payload]. A writer only displaces a cell carrying an
// older-or-equal timestamp, so racing batches resolve the same way on
// every replay. Counters live in a shadow column family maintained by
// the engine's additive merge, which keeps increments atomic with the
// rest of the batch.
type kvCluster struct {
	store kvstore.Store
}

const counterCFSuffix = "_counters"

// NewKVCluster builds an embedded cluster over store, creating the
// given column families and their counter shadows.
func NewKVCluster(store kvstore.Store, cfs []string) (Cluster, error) {
	for _, cf := range cfs {
		if err := store.CreateColumn(kvstore.CF(cf)); err != nil {
			return nil, err
		}
		if err := store.CreateColumn(kvstore.CF(cf + counterCFSuffix)); err != nil {
			return nil, err
		}
	}
	return &kvCluster{store: store}, nil
}

func (c *kvCluster) BatchMutate(ctx context.Context, mutations RowMutations, cl ConsistencyLevel) error {
	batch := c.store.NewWriteBatch()
	defer batch.Close()

	for rowKey, cfMuts := range mutations {
		row := []byte(rowKey)
		for cf, muts := range cfMuts {
			for i := range muts {
				if err := c.applyMutation(ctx, batch, cf, row, &muts[i]); err != nil {
					return err
				}
			}
		}
	}
	return c.store.Write(ctx, batch)
}

func (c *kvCluster) applyMutation(ctx context.Context, batch kvstore.WriteBatch, cf string, row []byte, mut *Mutation) error {
	switch {
	case mut.Column != nil:
		key := encodeCellKey(row, mut.Super, mut.Column.Name)
		shadowed, err := c.cellShadowed(ctx, cf, key, mut.Column.Timestamp)
		if err != nil {
			return err
		}
		if shadowed {
			return nil
		}
		batch.Put(kvstore.CF(cf), key, encodeCell(mut.Column.Timestamp, mut.Column.Value))
		return nil

	case mut.Counter != nil:
		key := encodeCellKey(row, nil, mut.Counter.Name)
		batch.Merge(kvstore.CF(cf+counterCFSuffix), key, kvstore.EncodeCounter(mut.Counter.Delta))
		return nil

	case mut.Deletion != nil:
		return c.applyDeletion(ctx, batch, cf, row, mut.Deletion)
	}
	return nil
}

func (c *kvCluster) applyDeletion(ctx context.Context, batch kvstore.WriteBatch, cf string, row []byte, del *Deletion) error {
	if del.ColumnNames != nil {
		for _, name := range del.ColumnNames {
			key := encodeCellKey(row, del.Super, name)
			doomed, err := c.cellOlderOrEqual(ctx, cf, key, del.Timestamp)
			if err != nil {
				return err
			}
			if doomed {
				batch.Delete(kvstore.CF(cf), key)
			}
		}
		return nil
	}

	prefix := encodeRowPrefix(row)
	if del.Super != nil {
		prefix = encodeSuperPrefix(row, del.Super)
	}
	lr := c.store.List(ctx, kvstore.CF(cf), prefix, nil)
	defer lr.Close()
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return err
		}
		if key == nil {
			break
		}
		if ts, _ := decodeCell(value); ts <= del.Timestamp {
			batch.Delete(kvstore.CF(cf), key)
		}
	}

	// a whole-row deletion takes the row's counters with it
	if del.Super == nil {
		clr := c.store.List(ctx, kvstore.CF(cf+counterCFSuffix), encodeRowPrefix(row), nil)
		defer clr.Close()
		for {
			key, _, err := clr.ReadNextCopy()
			if err != nil {
				return err
			}
			if key == nil {
				break
			}
			batch.Delete(kvstore.CF(cf+counterCFSuffix), key)
		}
	}
	return nil
}

func (c *kvCluster) GetSlice(ctx context.Context, rowKey []byte, parent ColumnParent, pred SlicePredicate, cl ConsistencyLevel) ([]ColumnOrSuper, error) {
	if pred.ColumnNames != nil {
		return c.sliceByNames(ctx, rowKey, parent, pred.ColumnNames)
	}
	rng := pred.Range
	if rng == nil {
		rng = &SliceRange{}
	}
	if parent.Super != nil {
		cols, err := c.readSuperColumns(ctx, parent.CF, rowKey, parent.Super)
		if err != nil {
			return nil, err
		}
		entries := make([]ColumnOrSuper, 0, len(cols))
		for i := range cols {
			col := cols[i]
			entries = append(entries, ColumnOrSuper{Column: &col})
		}
		return applyRange(entries, rng, bytes.Compare), nil
	}

	entries, err := c.readRow(ctx, parent.CF, rowKey)
	if err != nil {
		return nil, err
	}
	return applyRange(entries, rng, compareSuperNames), nil
}

func (c *kvCluster) MultigetSlice(ctx context.Context, rowKeys [][]byte, parent ColumnParent, pred SlicePredicate, cl ConsistencyLevel) (map[string][]ColumnOrSuper, error) {
	ret := make(map[string][]ColumnOrSuper, len(rowKeys))
	for _, rowKey := range rowKeys {
		entries, err := c.GetSlice(ctx, rowKey, parent, pred, cl)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			ret[string(rowKey)] = entries
		}
	}
	return ret, nil
}

func (c *kvCluster) GetCounter(ctx context.Context, rowKey []byte, cf string, column []byte, cl ConsistencyLevel) (uint64, bool, error) {
	value, err := c.store.GetRaw(ctx, kvstore.CF(cf+counterCFSuffix), encodeCellKey(rowKey, nil, column))
	if err == kvstore.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return kvstore.DecodeCounter(value), true, nil
}

func (c *kvCluster) MultigetCounter(ctx context.Context, rowKeys [][]byte, cf string, column []byte, cl ConsistencyLevel) (map[string]uint64, error) {
	ret := make(map[string]uint64, len(rowKeys))
	for _, rowKey := range rowKeys {
		value, exists, err := c.GetCounter(ctx, rowKey, cf, column, cl)
		if err != nil {
			return nil, err
		}
		if exists {
			ret[string(rowKey)] = value
		}
	}
	return ret, nil
}

func (c *kvCluster) sliceByNames(ctx context.Context, rowKey []byte, parent ColumnParent, names [][]byte) ([]ColumnOrSuper, error) {
	var ret []ColumnOrSuper
	for _, name := range names {
		if parent.Super != nil {
			col, ok, err := c.readCell(ctx, parent.CF, rowKey, parent.Super, name)
			if err != nil {
				return nil, err
			}
			if ok {
				ret = append(ret, ColumnOrSuper{Column: col})
			}
			continue
		}

		// top level: the name is a plain column or a whole super column
		col, ok, err := c.readCell(ctx, parent.CF, rowKey, nil, name)
		if err != nil {
			return nil, err
		}
		if ok {
			ret = append(ret, ColumnOrSuper{Column: col})
			continue
		}
		cols, err := c.readSuperColumns(ctx, parent.CF, rowKey, name)
		if err != nil {
			return nil, err
		}
		if len(cols) > 0 {
			superName := make([]byte, len(name))
			copy(superName, name)
			ret = append(ret, ColumnOrSuper{Super: &SuperColumn{Name: superName, Columns: cols}})
		}
	}
	return ret, nil
}

func (c *kvCluster) readCell(ctx context.Context, cf string, row, super, name []byte) (*Column, bool, error) {
	value, err := c.store.GetRaw(ctx, kvstore.CF(cf), encodeCellKey(row, super, name))
	if err == kvstore.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ts, payload := decodeCell(value)
	nameCopy := make([]byte, len(name))
	copy(nameCopy, name)
	return &Column{Name: nameCopy, Value: payload, Timestamp: ts}, true, nil
}

func (c *kvCluster) readSuperColumns(ctx context.Context, cf string, row, super []byte) ([]Column, error) {
	var cols []Column
	lr := c.store.List(ctx, kvstore.CF(cf), encodeSuperPrefix(row, super), nil)
	defer lr.Close()
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, err
		}
		if key == nil {
			return cols, nil
		}
		_, _, name := decodeCellKey(key)
		ts, payload := decodeCell(value)
		cols = append(cols, Column{Name: name, Value: payload, Timestamp: ts})
	}
}

// readRow loads one full row grouped into top-level entries. Keys sort
// plain columns first, then super columns grouped contiguously, so one
// pass suffices.
func (c *kvCluster) readRow(ctx context.Context, cf string, row []byte) ([]ColumnOrSuper, error) {
	var (
		entries []ColumnOrSuper
		current *SuperColumn
	)
	lr := c.store.List(ctx, kvstore.CF(cf), encodeRowPrefix(row), nil)
	defer lr.Close()
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, err
		}
		if key == nil {
			break
		}
		_, super, name := decodeCellKey(key)
		ts, payload := decodeCell(value)
		col := Column{Name: name, Value: payload, Timestamp: ts}
		if len(super) == 0 {
			plain := col
			entries = append(entries, ColumnOrSuper{Column: &plain})
			continue
		}
		if current == nil || !bytes.Equal(current.Name, super) {
			current = &SuperColumn{Name: super}
			entries = append(entries, ColumnOrSuper{Super: current})
		}
		current.Columns = append(current.Columns, col)
	}
	return entries, nil
}

func (c *kvCluster) cellShadowed(ctx context.Context, cf string, key []byte, ts int64) (bool, error) {
	value, err := c.store.GetRaw(ctx, kvstore.CF(cf), key)
	if err == kvstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	existing, _ := decodeCell(value)
	return existing > ts, nil
}

func (c *kvCluster) cellOlderOrEqual(ctx context.Context, cf string, key []byte, ts int64) (bool, error) {
	value, err := c.store.GetRaw(ctx, kvstore.CF(cf), key)
	if err == kvstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	existing, _ := decodeCell(value)
	return existing <= ts, nil
}

// applyRange filters ordered entries by an inclusive [Start, Finish]
// window, then applies Reversed and Count.
func applyRange(entries []ColumnOrSuper, rng *SliceRange, cmp func(a, b []byte) int) []ColumnOrSuper {
	filtered := entries[:0:0]
	for i := range entries {
		name := entries[i].Name()
		if len(rng.Start) > 0 && cmp(name, rng.Start) < 0 {
			continue
		}
		if len(rng.Finish) > 0 && cmp(name, rng.Finish) > 0 {
			continue
		}
		filtered = append(filtered, entries[i])
	}
	if rng.Reversed {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	if rng.Count > 0 && len(filtered) > rng.Count {
		filtered = filtered[:rng.Count]
	}
	return filtered
}

// compareSuperNames matches the cell key collation for super column
// names: shorter names sort before longer ones, ties by bytes.
func compareSuperNames(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

func encodeRowPrefix(row []byte) []byte {
	buf := make([]byte, 2+len(row))
	binary.BigEndian.PutUint16(buf, uint16(len(row)))
	copy(buf[2:], row)
	return buf
}

func encodeSuperPrefix(row, super []byte) []byte {
	buf := make([]byte, 2+len(row)+2+len(super))
	binary.BigEndian.PutUint16(buf, uint16(len(row)))
	copy(buf[2:], row)
	binary.BigEndian.PutUint16(buf[2+len(row):], uint16(len(super)))
	copy(buf[4+len(row):], super)
	return buf
}

func encodeCellKey(row, super, name []byte) []byte {
	buf := make([]byte, 2+len(row)+2+len(super)+len(name))
	binary.BigEndian.PutUint16(buf, uint16(len(row)))
	copy(buf[2:], row)
	binary.BigEndian.PutUint16(buf[2+len(row):], uint16(len(super)))
	copy(buf[4+len(row):], super)
	copy(buf[4+len(row)+len(super):], name)
	return buf
}

func decodeCellKey(key []byte) (row, super, name []byte) {
	rowLen := binary.BigEndian.Uint16(key)
	row = key[2 : 2+rowLen]
	superLen := binary.BigEndian.Uint16(key[2+rowLen:])
	super = key[4+rowLen : 4+uint32(rowLen)+uint32(superLen)]
	name = key[4+uint32(rowLen)+uint32(superLen):]
	return
}

func encodeCell(ts int64, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(ts))
	copy(buf[8:], payload)
	return buf
}

func decodeCell(value []byte) (ts int64, payload []byte) {
	if len(value) < 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(value)), value[8:]
}
