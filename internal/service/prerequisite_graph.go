package service

import "github.com/noah-isme/lms-api/internal/models"

// PrerequisiteGraph indexes prerequisite edges by target course.
type PrerequisiteGraph struct {
	adjacency map[string][]string
}

// NewPrerequisiteGraph builds the index from a full edge set.
func NewPrerequisiteGraph(edges []models.Prerequisite) *PrerequisiteGraph {
	g := &PrerequisiteGraph{adjacency: make(map[string][]string, len(edges))}
	for _, edge := range edges {
		g.Add(edge.TargetCourseID, edge.PrerequisiteCourseID)
	}
	return g
}

// Add records that target requires prerequisite.
func (g *PrerequisiteGraph) Add(target, prerequisite string) {
	g.adjacency[target] = append(g.adjacency[target], prerequisite)
}

// RemoveTarget drops every outgoing edge of target.
func (g *PrerequisiteGraph) RemoveTarget(target string) {
	delete(g.adjacency, target)
}

// WouldCycle reports whether adding the edge target -> prerequisite closes a cycle,
// that is whether target is already reachable from prerequisite. Self references
// always cycle. Existing cycles in the graph do not prevent termination.
func (g *PrerequisiteGraph) WouldCycle(target, prerequisite string) bool {
	if target == prerequisite {
		return true
	}

	visited := map[string]struct{}{prerequisite: {}}
	stack := []string{prerequisite}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, next := range g.adjacency[current] {
			if next == target {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}
