package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/spacebio/knowledge-engine/backend/internal/ingest"
	"github.com/spacebio/knowledge-engine/backend/internal/queue"
	"github.com/spacebio/knowledge-engine/backend/internal/server/middleware"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// EnqueueIngestHandler schedules an ingestion run. With a queue the job is
// published for the worker; without one it runs in the background of this
// process.
func EnqueueIngestHandler(c echo.Context) error {
	type ingestRequest struct {
		Manifest string `json:"manifest"`
		Reset    bool   `json:"reset"`
	}

	type responseData struct {
		JobID    string `json:"job_id"`
		Manifest string `json:"manifest"`
		Reset    bool   `json:"reset"`
		Queued   bool   `json:"queued"`
	}

	data := new(ingestRequest)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "invalid request body")
	}

	cc := c.(*middleware.AppContext)
	app := cc.App
	manifest := data.Manifest
	if manifest == "" {
		manifest = app.ManifestPath
	}
	if manifest == "" {
		return badRequest(c, "manifest is required")
	}

	ctx := c.Request().Context()
	if app.Queue != nil {
		job, err := queue.EnqueueIngest(ctx, app.Queue, manifest, data.Reset)
		if err != nil {
			return handleError(c, err)
		}
		logger.Info("[Server] Ingest job queued", "job_id", job.ID, "user", cc.User.UserID)
		return c.JSON(http.StatusAccepted, responseData{JobID: job.ID, Manifest: manifest, Reset: data.Reset, Queued: true})
	}

	if app.Runner == nil {
		return errorJSON(c, http.StatusServiceUnavailable, KindInternal, "ingestion is not available")
	}
	id, err := gonanoid.New()
	if err != nil {
		return handleError(c, err)
	}
	job := ingest.Job{ID: id, ManifestPath: manifest, Reset: data.Reset}
	go func() {
		// outlives the request
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 6*time.Hour)
		defer cancel()
		if _, err := app.Runner.Run(runCtx, job); err != nil {
			logger.Error("[Server] Background ingest failed", "job_id", job.ID, "err", err)
		}
	}()
	logger.Info("[Server] Ingest job started", "job_id", job.ID, "user", cc.User.UserID)
	return c.JSON(http.StatusAccepted, responseData{JobID: job.ID, Manifest: manifest, Reset: data.Reset})
}

// ResetGraphHandler deletes every node and edge.
func ResetGraphHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	app := cc.App

	var err error
	if app.Runner != nil {
		err = app.Runner.Reset(c.Request().Context())
	} else {
		err = app.Graph.ResetGraph(c.Request().Context())
	}
	if err != nil {
		return handleError(c, err)
	}
	logger.Warn("[Server] Graph reset", "user", cc.User.UserID)
	return c.NoContent(http.StatusNoContent)
}
