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

// Package columnar models a wide-column store: rows addressed by key,
// holding either plain columns or super columns (a named group of
// columns), written through timestamped mutations that resolve racing
// writers by last-write-wins.
package columnar

type ConsistencyLevel uint8

const (
	ConsistencyOne ConsistencyLevel = iota + 1
	ConsistencyQuorum
	ConsistencyAll
)

func (cl ConsistencyLevel) String() string {
	switch cl {
	case ConsistencyOne:
		return "one"
	case ConsistencyQuorum:
		return "quorum"
	case ConsistencyAll:
		return "all"
	default:
		return "unknown"
	}
}

// Column is one timestamped cell. Timestamp is microseconds; the cell
// with the larger timestamp wins on conflict.
type Column struct {
	Name      []byte
	Value     []byte
	Timestamp int64
}

// SuperColumn groups columns under one name inside a row.
type SuperColumn struct {
	Name    []byte
	Columns []Column
}

// ColumnOrSuper is one slice result entry; exactly one field is set.
type ColumnOrSuper struct {
	Column *Column
	Super  *SuperColumn
}

// Name returns the entry's own name: the column name for a plain
// column, the super column name otherwise.
func (c *ColumnOrSuper) Name() []byte {
	if c.Column != nil {
		return c.Column.Name
	}
	return c.Super.Name
}

// Deletion removes columns no newer than Timestamp. With ColumnNames
// nil it covers the whole super column, or the whole row when Super is
// also nil.
type Deletion struct {
	Super       []byte
	ColumnNames [][]byte
	Timestamp   int64
}

// CounterAdd is a commutative increment of a counter column.
type CounterAdd struct {
	Name  []byte
	Delta uint64
}

// Mutation is one element of a batch: a column put, a counter add or a
// deletion. Exactly one of the three fields is set. Super qualifies a
// put; plain-column puts leave it nil.
type Mutation struct {
	Super    []byte
	Column   *Column
	Counter  *CounterAdd
	Deletion *Deletion
}

// PutColumn builds a plain column put.
func PutColumn(name, value []byte, timestamp int64) Mutation {
	return Mutation{Column: &Column{Name: name, Value: value, Timestamp: timestamp}}
}

// PutSubColumn builds a put of one column inside a super column.
func PutSubColumn(super, name, value []byte, timestamp int64) Mutation {
	return Mutation{Super: super, Column: &Column{Name: name, Value: value, Timestamp: timestamp}}
}

// AddCounter builds a counter increment.
func AddCounter(name []byte, delta uint64) Mutation {
	return Mutation{Counter: &CounterAdd{Name: name, Delta: delta}}
}

// DeleteColumns builds a deletion of the named columns under super
// (nil super targets plain columns).
func DeleteColumns(super []byte, names [][]byte, timestamp int64) Mutation {
	return Mutation{Deletion: &Deletion{Super: super, ColumnNames: names, Timestamp: timestamp}}
}

// DeleteSuper builds a deletion of a whole super column.
func DeleteSuper(super []byte, timestamp int64) Mutation {
	return Mutation{Deletion: &Deletion{Super: super, Timestamp: timestamp}}
}

// DeleteRow builds a deletion of every column in the row.
func DeleteRow(timestamp int64) Mutation {
	return Mutation{Deletion: &Deletion{Timestamp: timestamp}}
}

// SliceRange selects a contiguous run of names. Start and Finish are
// inclusive; empty means unbounded. Count limits the result when
// positive. Reversed walks from the high end.
type SliceRange struct {
	Start    []byte
	Finish   []byte
	Reversed bool
	Count    int
}

// SlicePredicate selects columns either by explicit names or by range.
// Exactly one of the two fields is set.
type SlicePredicate struct {
	ColumnNames [][]byte
	Range       *SliceRange
}

// ColumnParent addresses the container being sliced: a column family,
// optionally narrowed to one super column.
type ColumnParent struct {
	CF    string
	Super []byte
}

// RowMutations maps row key -> column family -> mutations. One
// BatchMutate call applies atomically.
type RowMutations map[string]map[string][]Mutation

// Add appends a mutation for (rowKey, cf), allocating nested maps as
// needed.
func (m RowMutations) Add(rowKey []byte, cf string, muts ...Mutation) {
	row, ok := m[string(rowKey)]
	if !ok {
		row = make(map[string][]Mutation)
		m[string(rowKey)] = row
	}
	row[cf] = append(row[cf], muts...)
}
