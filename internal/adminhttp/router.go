// Package adminhttp is the hub's optional ambient HTTP surface: liveness
// and readiness probes, a tag-velocity debug dump, and a blob-key listing
// endpoint. It never carries any pipeline-coordination traffic — that is
// the TCP dispatcher's job — and is disabled entirely when no admin
// address is configured.
package adminhttp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/governor"
	"github.com/daniel-olson-code/buelon/internal/logger"
	"github.com/daniel-olson-code/buelon/internal/metadata"
	"github.com/daniel-olson-code/buelon/internal/platform/apierr"
	"github.com/daniel-olson-code/buelon/internal/platform/ctxutil"
	"github.com/daniel-olson-code/buelon/internal/txqueue"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

type Dependencies struct {
	Repo  metadata.Repo
	Store blob.Store
	Queue *txqueue.Queue
	Gov   *governor.Governor
}

func NewRouter(deps Dependencies, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(attachTraceContext())
	router.Use(otelgin.Middleware("pipeline-hub"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"X-Trace-Id", "X-Request-Id"},
		AllowCredentials: false,
	}))

	router.GET("/healthz", handleHealthz)
	router.GET("/readyz", handleReadyz(deps, log))
	router.GET("/debug/tag-usage", handleTagUsage(deps))
	router.GET("/debug/blobs", handleListBlobs(deps, log))

	return router
}

func handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func handleReadyz(deps Dependencies, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if _, err := deps.Repo.CountByStatus(ctx, nil); err != nil {
			apiErr := apierr.New(http.StatusServiceUnavailable, "metadata_store_unreachable", err)
			log.Warn("readyz: metadata store unreachable", "error", err)
			c.JSON(apiErr.Status, gin.H{"ready": false, "reason": apiErr.Code})
			return
		}

		if deps.Queue != nil {
			if err := deps.Queue.Ping(ctx); err != nil {
				apiErr := apierr.New(http.StatusServiceUnavailable, "transaction_queue_unreachable", err)
				log.Warn("readyz: transaction queue unreachable", "error", err)
				c.JSON(apiErr.Status, gin.H{"ready": false, "reason": apiErr.Code})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"ready": true})
	}
}

func handleTagUsage(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Gov.Usage())
	}
}

// handleListBlobs lists the keys present in one blob category — step
// definitions or step-data payloads — for operator inspection. Category
// defaults to step-data since that is the one blob GC removes over time.
func handleListBlobs(deps Dependencies, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		category := blob.Category(c.DefaultQuery("category", string(blob.CategoryStepData)))
		if category != blob.CategoryStepData && category != blob.CategoryStepDef {
			apiErr := apierr.New(http.StatusBadRequest, "invalid_category", nil)
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Code})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		keys, err := deps.Store.ListKeys(ctx, category)
		if err != nil {
			apiErr := apierr.New(http.StatusServiceUnavailable, "blob_store_list_failed", err)
			log.Warn("debug/blobs: list failed", "category", category, "error", err)
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Code})
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": category, "keys": keys})
	}
}

// attachTraceContext echoes an inbound trace/request id or generates one
// when absent; span context comes from otelgin above, not from here.
func attachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}
