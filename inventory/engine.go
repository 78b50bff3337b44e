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

package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/columnar"
	"github.com/halcyongrid/inventorydb/metrics"
	"github.com/halcyongrid/inventorydb/proto"
	"github.com/halcyongrid/inventorydb/util"
)

// Config tunes the engine. Zero values fall back to production
// defaults; tests shrink the chunk sizes to exercise pagination.
type Config struct {
	IndexChunkSize    int `json:"index_chunk_size"`
	VersionChunkSize  int `json:"version_chunk_size"`
	ContentsChunkSize int `json:"contents_chunk_size"`
}

// Engine executes inventory operations against a wide-column backend.
// Every mutation of one logical operation shares a single timestamp,
// and failed mutations of retryable operations are handed to the
// delayed mutation manager when one is attached.
type Engine struct {
	client *columnar.Client
	retry  *DelayedMutationManager

	indexChunk    int
	versionChunk  int
	contentsChunk int
}

func NewEngine(client *columnar.Client, cfg Config) *Engine {
	if cfg.IndexChunkSize <= 0 {
		cfg.IndexChunkSize = defaultIndexChunkSize
	}
	if cfg.VersionChunkSize <= 0 {
		cfg.VersionChunkSize = defaultVersionChunkSize
	}
	if cfg.ContentsChunkSize <= 0 {
		cfg.ContentsChunkSize = defaultContentsChunkSize
	}
	return &Engine{
		client:        client,
		indexChunk:    cfg.IndexChunkSize,
		versionChunk:  cfg.VersionChunkSize,
		contentsChunk: cfg.ContentsChunkSize,
	}
}

// SetRetryManager attaches a delayed mutation manager. Without one,
// failed mutations surface to the caller as storage errors.
func (e *Engine) SetRetryManager(mgr *DelayedMutationManager) {
	e.retry = mgr
	if mgr != nil {
		mgr.bind(e)
	}
}

// newTimestamp stamps one logical operation.
func newTimestamp() int64 {
	return util.NextTimestamp()
}

// retryOrFail is the tail of every retryable mutating operation.
// Unrecoverable failures always surface. Anything else is queued for
// delayed retry when a manager is attached, otherwise classified as a
// storage failure.
func (e *Engine) retryOrFail(ctx context.Context, err error, op *pendingOp) error {
	opName := opKindNames[op.kind]
	if err == nil {
		metrics.EngineOpCount.WithLabelValues(opName, "ok").Inc()
		return nil
	}
	if errors.Is(err, proto.ErrUnrecoverable) {
		metrics.EngineOpCount.WithLabelValues(opName, "unrecoverable").Inc()
		return err
	}

	span := trace.SpanFromContextSafe(ctx)
	span.Errorf("%s failed: %s", op.tag(), err)

	if e.retry != nil {
		metrics.EngineOpCount.WithLabelValues(opName, "queued").Inc()
		e.retry.Add(ctx, op)
		return nil
	}
	metrics.EngineOpCount.WithLabelValues(opName, "failed").Inc()
	return proto.StorageError(err, "could not apply %s", op.tag())
}

// observeOp records the latency of one read operation.
func observeOp(op string, start time.Time) {
	metrics.EngineOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// PerformMutations applies raw row mutations, bypassing every engine
// rule. It exists for tests and repair tooling.
func (e *Engine) PerformMutations(ctx context.Context, muts columnar.RowMutations) error {
	return e.client.Mutate(ctx, muts)
}

// folderVersion reads a folder's version counter. The stored count
// wraps modulo 65535 on read.
func (e *Engine) folderVersion(ctx context.Context, folderID uuid.UUID) (uint16, bool, error) {
	count, exists, err := e.client.GetCounter(ctx, encodeUUID(folderID), cfFolderVersions, colCount)
	if err != nil || !exists {
		return 0, exists, err
	}
	return uint16(count % versionModulus), true, nil
}
