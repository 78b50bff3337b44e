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

// Client binds a Cluster to a keyspace and a consistency level and
// adds chunked retrieval on top, so callers never see backend paging
// limits. Wide rows are read in fixed-size slices that resume from the
// last returned name.
type Client struct {
	cluster  Cluster
	keyspace string
	cl       ConsistencyLevel
}

func NewClient(cluster Cluster, keyspace string, cl ConsistencyLevel) *Client {
	return &Client{cluster: cluster, keyspace: keyspace, cl: cl}
}

func (c *Client) Keyspace() string {
	return c.keyspace
}

func (c *Client) Mutate(ctx context.Context, mutations RowMutations) error {
	return c.cluster.BatchMutate(ctx, mutations, c.cl)
}

func (c *Client) GetSlice(ctx context.Context, rowKey []byte, parent ColumnParent, pred SlicePredicate) ([]ColumnOrSuper, error) {
	return c.cluster.GetSlice(ctx, rowKey, parent, pred, c.cl)
}

// GetColumns reads explicitly named columns of one row.
func (c *Client) GetColumns(ctx context.Context, rowKey []byte, parent ColumnParent, names [][]byte) ([]ColumnOrSuper, error) {
	return c.cluster.GetSlice(ctx, rowKey, parent, SlicePredicate{ColumnNames: names}, c.cl)
}

func (c *Client) GetCounter(ctx context.Context, rowKey []byte, cf string, column []byte) (uint64, bool, error) {
	return c.cluster.GetCounter(ctx, rowKey, cf, column, c.cl)
}

// MultigetCounterChunked reads one counter column across many rows in
// groups of rowChunk keys.
func (c *Client) MultigetCounterChunked(ctx context.Context, rowKeys [][]byte, cf string, column []byte, rowChunk int) (map[string]uint64, error) {
	ret := make(map[string]uint64, len(rowKeys))
	for begin := 0; begin < len(rowKeys); begin += rowChunk {
		end := begin + rowChunk
		if end > len(rowKeys) {
			end = len(rowKeys)
		}
		counters, err := c.cluster.MultigetCounter(ctx, rowKeys[begin:end], cf, column, c.cl)
		if err != nil {
			return nil, err
		}
		for key, value := range counters {
			ret[key] = value
		}
	}
	return ret, nil
}

// GetAllChunked drains a whole row (or one super column, when
// parent.Super is set) in slices of chunkSize. Each follow-up slice
// starts at the last name already seen and drops that overlapping
// entry, so the concatenation is exact regardless of row width.
func (c *Client) GetAllChunked(ctx context.Context, rowKey []byte, parent ColumnParent, chunkSize int) ([]ColumnOrSuper, error) {
	var (
		ret   []ColumnOrSuper
		start []byte
	)
	for {
		count := chunkSize
		if start != nil {
			count = chunkSize + 1
		}
		entries, err := c.cluster.GetSlice(ctx, rowKey, parent, SlicePredicate{
			Range: &SliceRange{Start: start, Count: count},
		}, c.cl)
		if err != nil {
			return nil, err
		}
		if start != nil && len(entries) > 0 {
			entries = entries[1:]
		}
		ret = append(ret, entries...)
		if len(entries) < chunkSize {
			return ret, nil
		}
		start = entries[len(entries)-1].Name()
	}
}

// MultigetChunked reads many rows in groups of rowChunk keys, merging
// the per-group results.
func (c *Client) MultigetChunked(ctx context.Context, rowKeys [][]byte, parent ColumnParent, pred SlicePredicate, rowChunk int) (map[string][]ColumnOrSuper, error) {
	ret := make(map[string][]ColumnOrSuper, len(rowKeys))
	for begin := 0; begin < len(rowKeys); begin += rowChunk {
		end := begin + rowChunk
		if end > len(rowKeys) {
			end = len(rowKeys)
		}
		rows, err := c.cluster.MultigetSlice(ctx, rowKeys[begin:end], parent, pred, c.cl)
		if err != nil {
			return nil, err
		}
		for key, entries := range rows {
			ret[key] = entries
		}
	}
	return ret, nil
}
