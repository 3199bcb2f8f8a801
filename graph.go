package modloader

import "slices"

// findCycle walks the graph depth-first from start and returns the first
// cycle reachable from it, with the repeated module at both ends. Nodes
// missing from the graph are treated as leaves: an undefined dependency is
// not an error until load time.
func findCycle(graph map[string][]string, start string) []string {
	var path []string
	onPath := make(map[string]int)
	done := make(map[string]bool)

	var visit func(node string) []string
	visit = func(node string) []string {
		if idx, ok := onPath[node]; ok {
			cycle := slices.Clone(path[idx:])
			return append(cycle, node)
		}
		if done[node] {
			return nil
		}
		deps, ok := graph[node]
		if !ok {
			return nil
		}

		onPath[node] = len(path)
		path = append(path, node)
		for _, dep := range deps {
			if cycle := visit(dep); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		delete(onPath, node)
		done[node] = true
		return nil
	}

	return visit(start)
}

// topologicalOrder returns every node of graph with dependencies before
// dependents. Roots are visited in the order given and dependencies in
// their declared order, so the result is stable for a given registration
// sequence.
func topologicalOrder(graph map[string][]string, roots []string) ([]string, error) {
	result := make([]string, 0, len(roots))
	visited := make(map[string]bool, len(roots))
	onPath := make(map[string]int)
	var path []string

	var visit func(node, requiredBy string) error
	visit = func(node, requiredBy string) error {
		if idx, ok := onPath[node]; ok {
			cycle := append(slices.Clone(path[idx:]), node)
			return &CircularDependencyError{Path: cycle}
		}
		if visited[node] {
			return nil
		}
		deps, ok := graph[node]
		if !ok {
			return &ModuleNotFoundError{Name: node, RequiredBy: requiredBy}
		}

		onPath[node] = len(path)
		path = append(path, node)
		for _, dep := range deps {
			if err := visit(dep, node); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		delete(onPath, node)

		visited[node] = true
		result = append(result, node)
		return nil
	}

	for _, root := range roots {
		if err := visit(root, ""); err != nil {
			return nil, err
		}
	}
	return result, nil
}
