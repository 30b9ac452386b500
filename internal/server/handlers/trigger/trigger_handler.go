package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/discovery"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/report"
	"github.com/openmined/docsync/internal/server/handlers/api"
)

const defaultRunsLimit = 20

type TriggerHandler struct {
	runner     Runner
	history    RunHistory
	dispatcher Dispatcher
}

// New creates the trigger handler. history may be nil when the journal is disabled.
func New(runner Runner, history RunHistory, dispatcher Dispatcher) *TriggerHandler {
	return &TriggerHandler{
		runner:     runner,
		history:    history,
		dispatcher: dispatcher,
	}
}

// Sync runs the target named in the path according to its response mode.
func (h *TriggerHandler) Sync(ctx *gin.Context) {
	h.sync(ctx, ctx.Param("target"))
}

// Legacy serves GET /api/httpTriggerScraping?target=<name>. Without a target it runs
// the first configured one.
func (h *TriggerHandler) Legacy(ctx *gin.Context) {
	var req LegacyRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind query: %w", err))
		return
	}

	name := req.Target
	if name == "" {
		targets := h.runner.Targets()
		if len(targets) == 0 {
			api.AbortWithError(ctx, http.StatusNotFound, api.CodeTargetNotFound, errors.New("no targets configured"))
			return
		}
		name = targets[0].Name
	}
	h.sync(ctx, name)
}

func (h *TriggerHandler) sync(ctx *gin.Context, name string) {
	target, ok := h.target(name)
	if !ok {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeTargetNotFound, fmt.Errorf("unknown target %q", name))
		return
	}

	if target.ResponseMode == config.FireAndForget {
		h.dispatcher.Go("sync "+name, func(runCtx context.Context) {
			res, err := h.runner.Run(runCtx, name)
			if err != nil {
				slog.Error("background sync failed", "target", name, "error", err)
				return
			}
			report.Log(slog.Default(), report.Summarize(res))
		})
		ctx.PureJSON(http.StatusAccepted, SyncResponse{
			Message: "sync started",
			Target:  name,
		})
		return
	}

	res, err := h.runner.Run(ctx.Request.Context(), name)
	if err != nil {
		status, code := classify(err)
		api.AbortWithMessage(ctx, status, code, "sync failed", err)
		return
	}

	ctx.PureJSON(http.StatusOK, SyncResponse{
		Message: "sync completed",
		Target:  name,
		Run:     report.Summarize(res),
	})
}

// Targets lists the configured targets.
func (h *TriggerHandler) Targets(ctx *gin.Context) {
	targets := h.runner.Targets()
	out := make([]TargetInfo, 0, len(targets))
	for _, t := range targets {
		out = append(out, TargetInfo{
			Name:         t.Name,
			URL:          t.URL,
			WriteMode:    string(t.WriteMode),
			ResponseMode: string(t.ResponseMode),
			OutputDir:    t.OutputDir,
			StorePath:    t.StorePath,
		})
	}
	ctx.PureJSON(http.StatusOK, gin.H{"targets": out})
}

// Runs lists the most recent runs of a target.
func (h *TriggerHandler) Runs(ctx *gin.Context) {
	if h.history == nil {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeHistoryDisabled, errors.New("run history is disabled"))
		return
	}

	name := ctx.Param("target")
	if _, ok := h.target(name); !ok {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeTargetNotFound, fmt.Errorf("unknown target %q", name))
		return
	}

	var req RunsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind query: %w", err))
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultRunsLimit
	}

	runs, err := h.history.Recent(ctx.Request.Context(), name, req.Limit)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeHistoryFailed, err)
		return
	}
	ctx.PureJSON(http.StatusOK, RunsResponse{Target: name, Runs: runs})
}

func (h *TriggerHandler) target(name string) (config.Target, bool) {
	for _, t := range h.runner.Targets() {
		if t.Name == name {
			return t, true
		}
	}
	return config.Target{}, false
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrUnknownTarget):
		return http.StatusNotFound, api.CodeTargetNotFound
	case errors.Is(err, engine.ErrRunInProgress):
		return http.StatusConflict, api.CodeSyncInProgress
	case errors.Is(err, discovery.ErrAuthRequired):
		return http.StatusInternalServerError, api.CodeAuthRequired
	default:
		return http.StatusInternalServerError, api.CodeSyncFailed
	}
}
