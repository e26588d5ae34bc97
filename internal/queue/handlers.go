package queue

import (
	"slices"

	"github.com/hibiken/asynq"
)

// HandlersRegistry collects the task handlers a worker serves.
type HandlersRegistry struct {
	mux   *asynq.ServeMux
	types []string
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
	r.types = append(r.types, taskType)
}

// Types lists the registered task types in sorted order.
func (r *HandlersRegistry) Types() []string {
	return slices.Sorted(slices.Values(r.types))
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}
