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

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/common/rpc/auditlog"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyongrid/inventorydb/metrics"
	"github.com/halcyongrid/inventorydb/proto"
)

const (
	defaultShutdownTimeoutS      = 10
	defaultReadRequestTimeoutS   = 30
	defaultWriteResponseTimeoutS = 60
)

// HttpServer exposes the admin surface: stats, prometheus metrics and
// the maintenance triggers. The client-facing inventory protocol is
// served elsewhere.
type HttpServer struct {
	httpServer *http.Server
	auditLog   auditlog.LogCloser

	*Server
}

func NewHttpServer(server *Server) *HttpServer {
	return &HttpServer{Server: server}
}

func (h *HttpServer) Serve(addr string) {
	lh, logFile, err := auditlog.Open("INVENTORYDB", &h.cfg.AuditLog)
	if err != nil {
		log.Fatal("open audit log:", err)
	}
	h.auditLog = logFile

	ph := profile.NewProfileHandler(addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newHandler(), lh, ph),
		ReadTimeout:  defaultReadRequestTimeoutS * time.Second,
		WriteTimeout: defaultWriteResponseTimeoutS * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.httpServer = httpServer

	log.Info("http server is running at:", addr)
}

func (h *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeoutS*time.Second)
	defer cancel()

	h.httpServer.Shutdown(ctx)
	if h.auditLog != nil {
		h.auditLog.Close()
	}
}

func (h *HttpServer) newHandler() *rpc.Router {
	promHandler := promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})

	rpc.GET("/stats", h.Stats, rpc.OptArgsQuery())
	rpc.GET("/metrics", func(c *rpc.Context) {
		promHandler.ServeHTTP(c.Writer, c.Request)
	})

	rpc.POST("/maintenance/repairfolderindex", h.RepairFolderIndex, rpc.OptArgsQuery())
	rpc.POST("/maintenance/rebuilditemindex", h.RebuildItemIndex, rpc.OptArgsQuery())
	rpc.POST("/maintenance/repairsubfolderindexes", h.RepairSubfolderIndexes, rpc.OptArgsQuery())
	rpc.POST("/maintenance/destroyfolder", h.DestroyFolder, rpc.OptArgsQuery())

	return rpc.DefaultRouter
}

type statsRet struct {
	Keyspace        string `json:"keyspace"`
	RetryQueueDepth int    `json:"retry_queue_depth"`
	StoreUsed       uint64 `json:"store_used"`
}

func (h *HttpServer) Stats(c *rpc.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.RespondError(httpError(err))
		return
	}
	c.RespondJSON(statsRet{
		Keyspace:        proto.Keyspace,
		RetryQueueDepth: h.retry.Len(),
		StoreUsed:       stats.Used,
	})
}

type ownerArgs struct {
	Owner string `json:"owner"`
}

func (args *ownerArgs) ownerID() (uuid.UUID, error) {
	return uuid.Parse(args.Owner)
}

func (h *HttpServer) RepairFolderIndex(c *rpc.Context) {
	h.runOwnerMaintenance(c, "repair folder index", h.engine.RepairFolderIndex)
}

func (h *HttpServer) RebuildItemIndex(c *rpc.Context) {
	h.runOwnerMaintenance(c, "rebuild item index", h.engine.RebuildItemIndex)
}

func (h *HttpServer) RepairSubfolderIndexes(c *rpc.Context) {
	h.runOwnerMaintenance(c, "repair subfolder indexes", h.engine.RepairSubfolderIndexes)
}

func (h *HttpServer) runOwnerMaintenance(c *rpc.Context, name string, fn func(context.Context, uuid.UUID) error) {
	args := new(ownerArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	ownerID, err := args.ownerID()
	if err != nil {
		c.RespondError(rpc.NewError(http.StatusBadRequest, "BadRequest", err))
		return
	}

	span, ctx := trace.StartSpanFromContext(c.Request.Context(), "")
	span.Infof("%s requested for %v", name, ownerID)
	if err := fn(ctx, ownerID); err != nil {
		span.Errorf("%s for %v failed: %s", name, ownerID, err)
		c.RespondError(httpError(err))
		return
	}
	c.RespondStatus(http.StatusOK)
}

type destroyFolderArgs struct {
	Owner  string `json:"owner"`
	Folder string `json:"folder"`
}

func (h *HttpServer) DestroyFolder(c *rpc.Context) {
	args := new(destroyFolderArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	ownerID, err := uuid.Parse(args.Owner)
	if err != nil {
		c.RespondError(rpc.NewError(http.StatusBadRequest, "BadRequest", err))
		return
	}
	folderID, err := uuid.Parse(args.Folder)
	if err != nil {
		c.RespondError(rpc.NewError(http.StatusBadRequest, "BadRequest", err))
		return
	}

	span, ctx := trace.StartSpanFromContext(c.Request.Context(), "")
	span.Infof("force destroy of folder %v for %v requested", folderID, ownerID)
	if err := h.engine.DestroyFolder(ctx, ownerID, folderID); err != nil {
		span.Errorf("force destroy of folder %v failed: %s", folderID, err)
		c.RespondError(httpError(err))
		return
	}
	c.RespondStatus(http.StatusOK)
}

// httpError maps the engine error taxonomy onto response codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, proto.ErrObjectMissing):
		return rpc.NewError(http.StatusNotFound, "NotFound", err)
	case errors.Is(err, proto.ErrSecurity):
		return rpc.NewError(http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, proto.ErrUnrecoverable):
		return rpc.NewError(http.StatusBadRequest, "BadRequest", err)
	default:
		return rpc.NewError(http.StatusInternalServerError, "InternalError", err)
	}
}
