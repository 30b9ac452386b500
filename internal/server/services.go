package server

import (
	"github.com/openmined/docsync/internal/server/handlers/trigger"
)

// Services are what the HTTP handlers work with. History is nil when the run journal
// is disabled.
type Services struct {
	Runner     trigger.Runner
	History    trigger.RunHistory
	Dispatcher *Dispatcher
}

func NewServices(runner trigger.Runner, history trigger.RunHistory) *Services {
	return &Services{
		Runner:     runner,
		History:    history,
		Dispatcher: NewDispatcher(),
	}
}
