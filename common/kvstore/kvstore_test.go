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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	engine, err := newMemStore(context.TODO(), &Option{ColumnFamily: []CF{"c1", "c2"}})
	require.NoError(t, err)
	return engine
}

func TestMemStore_SetGetDelete(t *testing.T) {
	ctx := context.TODO()
	eg := newTestStore(t)
	defer eg.Close()

	k := []byte("key1")
	v := []byte("value1")
	err := eg.SetRaw(ctx, defaultCF, k, v)
	require.NoError(t, err)
	v1, err := eg.GetRaw(ctx, defaultCF, k)
	require.NoError(t, err)
	require.Equal(t, v, v1)

	err = eg.Delete(ctx, defaultCF, k)
	require.NoError(t, err)
	_, err = eg.GetRaw(ctx, defaultCF, k)
	require.Equal(t, ErrNotFound, err)
}

func TestMemStore_CreateColumn(t *testing.T) {
	ctx := context.TODO()
	eg := newTestStore(t)
	defer eg.Close()

	require.False(t, eg.CheckColumns("colA"))
	require.NoError(t, eg.CreateColumn("colA"))
	require.True(t, eg.CheckColumns("colA"))
	require.NoError(t, eg.SetRaw(ctx, "colA", []byte("k"), []byte("v")))
}

func TestMemStore_WriteBatch(t *testing.T) {
	ctx := context.TODO()
	eg := newTestStore(t)
	defer eg.Close()

	batch := eg.NewWriteBatch()
	defer batch.Close()
	for i := 0; i < 5; i++ {
		batch.Put("c1", []byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i)))
	}
	batch.Delete("c1", []byte("k3"))
	require.NoError(t, eg.Write(ctx, batch))

	for _, i := range []int{0, 1, 2, 4} {
		v, err := eg.GetRaw(ctx, "c1", []byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("v%d", i)), v)
	}
	_, err := eg.GetRaw(ctx, "c1", []byte("k3"))
	require.Equal(t, ErrNotFound, err)
}

func TestMemStore_DeleteRange(t *testing.T) {
	ctx := context.TODO()
	eg := newTestStore(t)
	defer eg.Close()

	keys := [][]byte{[]byte("/k1/a"), []byte("/k1/b"), []byte("/k1/c"), []byte("/k10"), []byte("/k1012"), []byte("/k11")}
	for _, key := range keys {
		require.NoError(t, eg.SetRaw(ctx, defaultCF, key, []byte("1")))
	}

	batch := eg.NewWriteBatch()
	start := []byte("/k1/")
	end := []byte("/k1/")
	end = append(end[:len(end)-1], end[len(end)-1]+1)
	batch.DeleteRange(defaultCF, start, end)
	require.NoError(t, eg.Write(ctx, batch))
	batch.Close()

	for _, key := range [][]byte{[]byte("/k1/a"), []byte("/k1/b"), []byte("/k1/c")} {
		_, err := eg.GetRaw(ctx, defaultCF, key)
		require.Equal(t, ErrNotFound, err)
	}
	for _, key := range [][]byte{[]byte("/k10"), []byte("/k1012"), []byte("/k11")} {
		v, err := eg.GetRaw(ctx, defaultCF, key)
		require.NoError(t, err)
		require.Equal(t, []byte("1"), v)
	}
}

func TestMemStore_MergeCounter(t *testing.T) {
	ctx := context.TODO()
	eg := newTestStore(t)
	defer eg.Close()

	key := []byte("counter1")
	for i := 0; i < 3; i++ {
		batch := eg.NewWriteBatch()
		batch.Merge("c2", key, EncodeCounter(1))
		require.NoError(t, eg.Write(ctx, batch))
		batch.Close()
	}

	v, err := eg.GetRaw(ctx, "c2", key)
	require.NoError(t, err)
	require.Equal(t, uint64(3), DecodeCounter(v))

	// merging into a regular value treats it as zero
	require.NoError(t, eg.SetRaw(ctx, "c2", []byte("garbled"), []byte("xyz")))
	batch := eg.NewWriteBatch()
	batch.Merge("c2", []byte("garbled"), EncodeCounter(7))
	require.NoError(t, eg.Write(ctx, batch))
	batch.Close()
	v, err = eg.GetRaw(ctx, "c2", []byte("garbled"))
	require.NoError(t, err)
	require.Equal(t, uint64(7), DecodeCounter(v))
}

func TestMemStore_List(t *testing.T) {
	ctx := context.TODO()
	eg := newTestStore(t)
	defer eg.Close()

	pairs := map[string]string{
		"key1": "value1", "key2": "value2", "key3": "value3", "key4": "value4",
		"word1": "w1", "word2": "w2", "xyz": "zyx",
	}
	for k, v := range pairs {
		require.NoError(t, eg.SetRaw(ctx, defaultCF, []byte(k), []byte(v)))
	}

	// prefix read
	lr := eg.List(ctx, defaultCF, []byte("key"), nil)
	i := 0
	for {
		k, v, err := lr.ReadNextCopy()
		require.NoError(t, err)
		if k == nil {
			break
		}
		i++
		require.Equal(t, fmt.Sprintf("key%d", i), string(k))
		require.Equal(t, fmt.Sprintf("value%d", i), string(v))
	}
	require.Equal(t, 4, i)
	lr.Close()

	// marker read resumes from the marker key itself
	lr = eg.List(ctx, defaultCF, []byte("key"), []byte("key2"))
	k, v, err := lr.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("key2"), k)
	require.Equal(t, []byte("value2"), v)
	lr.Close()

	// nil prefix walks everything
	lr = eg.List(ctx, defaultCF, nil, nil)
	total := 0
	for {
		k, _, err := lr.ReadNextCopy()
		require.NoError(t, err)
		if k == nil {
			break
		}
		total++
	}
	require.Equal(t, len(pairs), total)
	lr.Close()
}

func TestCounterCodec(t *testing.T) {
	require.Equal(t, uint64(0), DecodeCounter(nil))
	require.Equal(t, uint64(0), DecodeCounter([]byte("short")))
	require.Equal(t, uint64(65534), DecodeCounter(EncodeCounter(65534)))
}

func TestNewKVStore_UnknownType(t *testing.T) {
	_, err := NewKVStore(context.TODO(), "", KVType("bogus"), &Option{})
	require.Equal(t, ErrKVTypeNotFound, err)
}
