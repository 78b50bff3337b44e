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
	"errors"
	"os"
	"testing"

	"github.com/halcyongrid/inventorydb/util"
	"github.com/stretchr/testify/require"
)

type testEg struct {
	engine Store
	path   string
}

func newRocksdbEngine(ctx context.Context, opt *Option) (*testEg, error) {
	path, err := util.GenTmpPath()
	if err != nil {
		return nil, err
	}
	if opt == nil {
		opt = new(Option)
	}
	opt.CreateIfMissing = true
	opt.Sync = true
	engine, err := newRocksdb(ctx, path, opt)
	if err != nil {
		return nil, err
	}
	return &testEg{engine: engine, path: path}, nil
}

func (eg *testEg) close() {
	eg.engine.Close()
	os.RemoveAll(eg.path)
}

func Test_openRocksdb(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)
	opt := new(Option)
	opt.CreateIfMissing = true
	opt.BlockSize = 1 << 20
	opt.BlockCache = 1 << 20
	opt.MaxBackgroundJobs = 8
	opt.KeepLogFileNum = 10000
	opt.MaxLogFileSize = 1 << 30
	opt.ColumnFamily = []CF{"a", "b", "c"}
	eg, err := newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()

	// open with empty path
	_, err = newRocksdb(ctx, "", opt)
	require.Equal(t, errors.New("path is empty"), err)
	// reopen db
	eg, err = newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()
	// open with wrong cf
	opt.ColumnFamily = []CF{"a", "b"}
	_, err = newRocksdb(ctx, path, opt)
	require.Error(t, err)
}

func TestRocksdb_SetGetRaw(t *testing.T) {
	ctx := context.TODO()
	eg, err := newRocksdbEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("key1")
	v := []byte("value1")
	require.NoError(t, eg.engine.SetRaw(ctx, defaultCF, k, v))
	v1, err := eg.engine.GetRaw(ctx, defaultCF, k)
	require.NoError(t, err)
	require.Equal(t, v, v1)
	require.NoError(t, eg.engine.Delete(ctx, defaultCF, k))
	_, err = eg.engine.GetRaw(ctx, defaultCF, k)
	require.Equal(t, ErrNotFound, err)
}

func TestRocksdb_MergeCounter(t *testing.T) {
	ctx := context.TODO()
	eg, err := newRocksdbEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	key := []byte("counter1")
	for i := 0; i < 4; i++ {
		batch := eg.engine.NewWriteBatch()
		batch.Merge(defaultCF, key, EncodeCounter(1))
		require.NoError(t, eg.engine.Write(ctx, batch))
		batch.Close()
	}

	v, err := eg.engine.GetRaw(ctx, defaultCF, key)
	require.NoError(t, err)
	require.Equal(t, uint64(4), DecodeCounter(v))
}

func TestRocksdb_ListPrefixMarker(t *testing.T) {
	ctx := context.TODO()
	eg, err := newRocksdbEngine(ctx, nil)
	require.NoError(t, err)
	defer eg.close()

	for _, kv := range [][2]string{
		{"key1", "value1"}, {"key2", "value2"}, {"key3", "value3"}, {"word1", "w1"},
	} {
		require.NoError(t, eg.engine.SetRaw(ctx, defaultCF, []byte(kv[0]), []byte(kv[1])))
	}

	lr := eg.engine.List(ctx, defaultCF, []byte("key"), []byte("key2"))
	k, v, err := lr.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("key2"), k)
	require.Equal(t, []byte("value2"), v)
	k, v, err = lr.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("key3"), k)
	require.Equal(t, []byte("value3"), v)
	k, _, err = lr.ReadNextCopy()
	require.NoError(t, err)
	require.Nil(t, k)
	lr.Close()
}
