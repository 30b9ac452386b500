package trigger

import (
	"context"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/history"
	"github.com/openmined/docsync/internal/report"
)

// Runner runs configured targets by name.
type Runner interface {
	Targets() []config.Target
	Run(ctx context.Context, target string) (*engine.RunResult, error)
}

// RunHistory reads the run journal.
type RunHistory interface {
	Recent(ctx context.Context, target string, limit int) ([]history.RunRecord, error)
}

// Dispatcher runs fire-and-forget work detached from the request that started it.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context))
}

type SyncResponse struct {
	Message string          `json:"message"`
	Target  string          `json:"target"`
	Run     *report.Summary `json:"run,omitempty"`
}

type TargetInfo struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	WriteMode    string `json:"write_mode"`
	ResponseMode string `json:"response_mode"`
	OutputDir    string `json:"output_dir"`
	StorePath    string `json:"store_path"`
}

type RunsRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type RunsResponse struct {
	Target string              `json:"target"`
	Runs   []history.RunRecord `json:"runs"`
}

type LegacyRequest struct {
	Target string `form:"target"`
}
