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
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/uuid"

	"github.com/halcyongrid/inventorydb/metrics"
	"github.com/halcyongrid/inventorydb/proto"
)

// opKind identifies which engine operation a pending mutation replays.
type opKind int

const (
	opCreateFolder opKind = iota
	opSaveFolder
	opMoveFolder
	opTrashFolder
	opPurgeFolderContents
	opPurgeFolder
	opPurgeEmptyFolder
	opPurgeFolders
	opCreateItem
	opSaveItem
	opMoveItem
	opTrashItem
	opPurgeItem
	opPurgeItems
)

var opKindNames = map[opKind]string{
	opCreateFolder:        "CreateFolder",
	opSaveFolder:          "SaveFolder",
	opMoveFolder:          "MoveFolder",
	opTrashFolder:         "TrashFolder",
	opPurgeFolderContents: "PurgeFolderContents",
	opPurgeFolder:         "PurgeFolder",
	opPurgeEmptyFolder:    "PurgeEmptyFolder",
	opPurgeFolders:        "PurgeFolders",
	opCreateItem:          "CreateItem",
	opSaveItem:            "SaveItem",
	opMoveItem:            "MoveItem",
	opTrashItem:           "TrashItem",
	opPurgeItem:           "PurgeItem",
	opPurgeItems:          "PurgeItems",
}

// pendingOp is one queued mutation: the operation kind plus a snapshot
// of everything needed to replay it with its original timestamp. The
// queue holds data, not closures, so its contents can be inspected and
// reported.
type pendingOp struct {
	kind opKind

	folder  *proto.Folder
	folders []*proto.Folder
	item    *proto.Item
	items   []*proto.Item

	// target is the operation's second identifier: the destination
	// parent of a move or the trash folder hint.
	target uuid.UUID

	timestamp int64

	attempts int
	readyAt  time.Time
	index    int
}

// tag renders the queue identifier logged for this operation.
func (op *pendingOp) tag() string {
	name := opKindNames[op.kind]
	switch {
	case op.folder != nil:
		return fmt.Sprintf("%s(%v)", name, op.folder.ID)
	case op.item != nil:
		return fmt.Sprintf("%s(%v)", name, op.item.ID)
	default:
		return fmt.Sprintf("%s(%d)", name, op.timestamp)
	}
}

// applyPending replays one queued operation against the engine with
// the timestamp it was originally stamped with.
func (e *Engine) applyPending(ctx context.Context, op *pendingOp) error {
	switch op.kind {
	case opCreateFolder:
		return e.createFolderAt(ctx, op.folder, op.timestamp)
	case opSaveFolder:
		return e.saveFolderAt(ctx, op.folder, op.timestamp)
	case opMoveFolder:
		return e.moveFolderAt(ctx, op.folder, op.target, op.timestamp)
	case opTrashFolder:
		_, err := e.sendFolderToTrashAt(ctx, op.folder, op.target, op.timestamp)
		return err
	case opPurgeFolderContents:
		return e.purgeFolderContentsAt(ctx, op.folder, op.timestamp)
	case opPurgeFolder, opPurgeEmptyFolder:
		// an empty-folder purge falls back to the full tree walk on
		// retry in case contents appeared in the meantime
		return e.purgeFolderAt(ctx, op.folder, op.timestamp)
	case opPurgeFolders:
		return e.purgeFoldersAt(ctx, op.folders, op.timestamp)
	case opCreateItem:
		return e.createItemAt(ctx, op.item, op.timestamp)
	case opSaveItem:
		return e.saveItemAt(ctx, op.item, op.timestamp)
	case opMoveItem:
		return e.moveItemAt(ctx, op.item, op.target, op.timestamp)
	case opTrashItem:
		_, err := e.sendItemToTrashAt(ctx, op.item, op.target, op.timestamp)
		return err
	case opPurgeItem:
		return e.purgeItemAt(ctx, op.item, op.timestamp)
	case opPurgeItems:
		return e.purgeItemsAt(ctx, op.items, op.timestamp)
	default:
		return fmt.Errorf("unknown pending operation kind %d: %w", op.kind, proto.ErrUnrecoverable)
	}
}

// opHeap is a min-heap ordered by readyAt.
type opHeap []*pendingOp

func (h opHeap) Len() int            { return len(h) }
func (h opHeap) Less(i, j int) bool  { return h[i].readyAt.Before(h[j].readyAt) }
func (h opHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *opHeap) Push(x interface{}) { op := x.(*pendingOp); op.index = len(*h); *h = append(*h, op) }
func (h *opHeap) Pop() interface{} {
	old := *h
	n := len(old)
	op := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return op
}

const (
	defaultPollInterval = 15 * time.Second
	maxRetries          = 4
)

// retryDelays maps the attempt count to the wait before the next try.
var retryDelays = [maxRetries]time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	20 * time.Minute,
	60 * time.Minute,
}

// DelayedMutationManager re-applies mutations that failed on transient
// backend trouble. Operations wait in a ready-time ordered heap; a
// poll loop applies everything due and reschedules failures with a
// growing delay until the retry ceiling discards them.
type DelayedMutationManager struct {
	mu      sync.Mutex
	pending opHeap
	engine  *Engine

	pollInterval time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewDelayedMutationManager(pollInterval time.Duration) *DelayedMutationManager {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &DelayedMutationManager{pollInterval: pollInterval}
}

func (m *DelayedMutationManager) bind(engine *Engine) {
	m.engine = engine
}

// Start launches the poll loop. Starting a running manager is a no-op.
func (m *DelayedMutationManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.workLoop(m.stopCh, m.doneCh)
}

// Stop halts the poll loop and waits for it to exit. Stopping a
// stopped manager is a no-op. Queued operations stay queued.
func (m *DelayedMutationManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Add schedules op for its first retry.
func (m *DelayedMutationManager) Add(ctx context.Context, op *pendingOp) {
	m.schedule(ctx, op)
}

// Len reports the number of queued operations.
func (m *DelayedMutationManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *DelayedMutationManager) schedule(ctx context.Context, op *pendingOp) {
	op.readyAt = time.Now().Add(retryDelays[op.attempts])

	span := trace.SpanFromContextSafe(ctx)
	span.Infof("mutation %s will be retried at %v", op.tag(), op.readyAt)

	m.mu.Lock()
	heap.Push(&m.pending, op)
	metrics.RetryQueueDepth.Set(float64(len(m.pending)))
	m.mu.Unlock()
}

func (m *DelayedMutationManager) workLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.applyReady()
		}
	}
}

// applyReady pops and applies every operation whose ready time has
// passed. Failures are rescheduled after the batch so an operation is
// tried at most once per pass.
func (m *DelayedMutationManager) applyReady() {
	span, ctx := trace.StartSpanFromContext(context.Background(), "")

	var needsRetry []*pendingOp
	for {
		m.mu.Lock()
		if len(m.pending) == 0 || m.pending[0].readyAt.After(time.Now()) {
			metrics.RetryQueueDepth.Set(float64(len(m.pending)))
			m.mu.Unlock()
			break
		}
		op := heap.Pop(&m.pending).(*pendingOp)
		m.mu.Unlock()

		if err := m.engine.applyPending(ctx, op); err != nil {
			span.Errorf("error while applying mutation %s on retry %d: %s", op.tag(), op.attempts+1, err)

			op.attempts++
			if op.attempts == maxRetries {
				span.Errorf("CRITICAL: retry limit reached, discarding mutation %s", op.tag())
				metrics.RetryDiscardTotal.Inc()
			} else {
				needsRetry = append(needsRetry, op)
			}
			continue
		}
		metrics.RetryAppliedTotal.Inc()
	}

	for _, op := range needsRetry {
		m.schedule(ctx, op)
	}
}
