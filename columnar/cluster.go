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

import "context"

// Cluster is the backend surface the storage engine consumes. A call
// that returns nil has been applied at the requested consistency
// level; BatchMutate is atomic per call but batches of one logical
// operation are NOT atomic with each other.
type Cluster interface {
	BatchMutate(ctx context.Context, mutations RowMutations, cl ConsistencyLevel) error

	// GetSlice reads columns of one row. With parent.Super set the
	// predicate addresses columns inside that super column; otherwise
	// it addresses the row's top level (plain columns and whole super
	// columns).
	GetSlice(ctx context.Context, rowKey []byte, parent ColumnParent, pred SlicePredicate, cl ConsistencyLevel) ([]ColumnOrSuper, error)

	// MultigetSlice is GetSlice over several rows; absent rows simply
	// do not appear in the result map.
	MultigetSlice(ctx context.Context, rowKeys [][]byte, parent ColumnParent, pred SlicePredicate, cl ConsistencyLevel) (map[string][]ColumnOrSuper, error)

	// GetCounter reads a counter column. Missing counters report
	// exists == false with no error.
	GetCounter(ctx context.Context, rowKey []byte, cf string, column []byte, cl ConsistencyLevel) (value uint64, exists bool, err error)

	// MultigetCounter reads the same counter column from several rows;
	// rows without the counter are omitted from the result map.
	MultigetCounter(ctx context.Context, rowKeys [][]byte, cf string, column []byte, cl ConsistencyLevel) (map[string]uint64, error)
}
