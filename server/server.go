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

// Package server wires the storage engine to its backing store and
// exposes the admin HTTP surface.
package server

import (
	"context"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/rpc/auditlog"
	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/common/kvstore"
	"github.com/halcyongrid/inventorydb/inventory"
	"github.com/halcyongrid/inventorydb/proto"
)

type Config struct {
	StorePath string          `json:"store_path"`
	KVType    kvstore.KVType  `json:"kv_type"`
	KVOption  kvstore.Option  `json:"kv_option"`
	Engine    inventory.Config `json:"engine"`

	RetryPollIntervalS int `json:"retry_poll_interval_s"`

	AuditLog auditlog.Config `json:"audit_log"`
}

// Server owns the store, the engine and the retry manager lifecycle.
type Server struct {
	cfg    *Config
	store  kvstore.Store
	engine *inventory.Engine
	retry  *inventory.DelayedMutationManager
}

func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	if cfg.KVType == "" {
		cfg.KVType = kvstore.RocksdbKVType
	}
	cfg.KVOption.CreateIfMissing = true

	store, err := kvstore.NewKVStore(ctx, cfg.StorePath, cfg.KVType, &cfg.KVOption)
	if err != nil {
		return nil, errors.Info(err, "open kv store")
	}
	cluster, err := columnar.NewKVCluster(store, inventory.ColumnFamilies())
	if err != nil {
		store.Close()
		return nil, errors.Info(err, "create column families")
	}

	client := columnar.NewClient(cluster, proto.Keyspace, columnar.ConsistencyQuorum)
	engine := inventory.NewEngine(client, cfg.Engine)

	retry := inventory.NewDelayedMutationManager(time.Duration(cfg.RetryPollIntervalS) * time.Second)
	engine.SetRetryManager(retry)
	retry.Start()

	return &Server{cfg: cfg, store: store, engine: engine, retry: retry}, nil
}

func (s *Server) Engine() *inventory.Engine {
	return s.engine
}

func (s *Server) Close() {
	s.retry.Stop()
	s.store.Close()
}
