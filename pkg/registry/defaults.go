package registry

import (
	"github.com/cascadehq/cascade/pkg/adapters"
	"github.com/cascadehq/cascade/pkg/nodes/action"
	"github.com/cascadehq/cascade/pkg/nodes/condition"
	"github.com/cascadehq/cascade/pkg/nodes/delay"
	"github.com/cascadehq/cascade/pkg/nodes/filternode"
	"github.com/cascadehq/cascade/pkg/nodes/loop"
	"github.com/cascadehq/cascade/pkg/nodes/query"
	"github.com/cascadehq/cascade/pkg/nodes/schedule"
)

// RegisterDefaultHandlers registers every built-in node handler. The query
// source, adapter registry, and template resolver are deployment wiring.
func (r *Registry) RegisterDefaultHandlers(source query.DataSource, deliveries *adapters.Registry, templates adapters.TemplateResolver) {
	r.Register(query.NewHandler(source))
	r.Register(filternode.NewHandler())
	r.Register(condition.NewHandler())
	r.Register(loop.NewHandler())
	r.Register(delay.NewHandler())
	r.Register(schedule.NewHandler())
	r.Register(action.NewHandler(deliveries, templates))
}
