package task

import "github.com/tradescan/assess-cli/internal/model"

// Registry holds the task set in execution order. The set is fixed at
// construction; there is no dynamic registration.
type Registry struct {
	tasks []Task
}

// NewRegistry builds the standard task set: website analysis first so the
// rule tasks downstream see its extracted products on later batches.
func NewRegistry(pipeline ProductPipeline, analyzer SiteAnalyzer) *Registry {
	return &Registry{
		tasks: []Task{
			NewWebsiteAnalysis(pipeline, analyzer),
			NewHSCode(),
			NewCompliance(),
		},
	}
}

// NewRegistryOf wraps an explicit task list. Tests use it to inject fakes.
func NewRegistryOf(tasks ...Task) *Registry {
	return &Registry{tasks: tasks}
}

// Tasks returns the ordered task list.
func (r *Registry) Tasks() []Task {
	return r.tasks
}

// ActiveTasks returns the tasks applicable to one record, in order.
func (r *Registry) ActiveTasks(a *model.Assessment) []Task {
	var active []Task
	for _, t := range r.tasks {
		if t.Active(a) {
			active = append(active, t)
		}
	}
	return active
}
