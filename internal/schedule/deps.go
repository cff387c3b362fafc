package schedule

import (
	"fmt"
	"sort"

	"github.com/gammazero/toposort"
)

// DependencyReport describes how a task set's dependency strings relate to
// the tasks in it. It is informational only: statuses and dates never depend on it.
type DependencyReport struct {
	Unknown map[string][]string // task id -> referenced ids that are not in the set
	Order   []string            // tasks ordered so that references come first (empty on cycle)
	Cycle   error               // non-nil when references form a cycle
}

// Clean reports whether every reference resolves and no cycle exists.
func (r DependencyReport) Clean() bool {
	return len(r.Unknown) == 0 && r.Cycle == nil
}

// CheckDependencies inspects the dependency references of tasks.
func CheckDependencies(tasks []*Task) DependencyReport {
	report := DependencyReport{Unknown: make(map[string][]string)}

	known := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		known[task.ID] = true
	}

	// Build edges for topological sort
	var edges []toposort.Edge
	for _, task := range tasks {
		resolved := 0
		for _, dep := range task.Dependencies {
			if !known[dep] {
				report.Unknown[task.ID] = append(report.Unknown[task.ID], dep)
				continue
			}
			// Edge (dep, task) means dep must come before task
			edges = append(edges, toposort.Edge{dep, task.ID})
			resolved++
		}
		if resolved == 0 {
			edges = append(edges, toposort.Edge{nil, task.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		report.Cycle = fmt.Errorf("dependency cycle: %w", err)
		return report
	}

	seen := make(map[string]bool, len(tasks))
	for _, id := range sorted {
		if id == nil {
			continue
		}
		s := id.(string)
		if !seen[s] {
			seen[s] = true
			report.Order = append(report.Order, s)
		}
	}

	for _, deps := range report.Unknown {
		sort.Strings(deps)
	}
	return report
}
