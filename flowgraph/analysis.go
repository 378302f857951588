package flowgraph

import (
	"fmt"
	"sort"
)

// Analysis status values
const (
	StatusHealthy  = "healthy"
	StatusWarnings = "warnings"
)

// Issue codes reported by Analyze. They mirror the checks the execution
// engine performs at submit time.
const (
	IssueEmpty          = "empty_flow"
	IssueNoStart        = "no_start_node"
	IssueMultipleStarts = "multiple_start_nodes"
	IssueNoEnd          = "no_end_node"
	IssueIsolated       = "isolated_node"
	IssueDuplicateEdge  = "duplicate_connection"
	IssueNoPath         = "no_path_to_end"
	IssueUnresolved     = "unresolved_instruction"
)

// AnalysisIssue is one advisory finding.
type AnalysisIssue struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	NodeIDs []string `json:"node_ids,omitempty"`
}

// Analysis is a local, advisory connectivity report. The engine's
// validation at execution time stays authoritative.
type Analysis struct {
	StartNodes          []string        `json:"start_nodes"`
	EndNodes            []string        `json:"end_nodes"`
	IsolatedNodes       []string        `json:"isolated_nodes"`
	ConnectedComponents [][]string      `json:"connected_components"`
	Issues              []AnalysisIssue `json:"issues"`
	Status              string          `json:"status"`
}

// Analyze inspects the current graph shape.
//
// A start node has no incoming edge and an end node has no outgoing edge.
// A runnable flow has exactly one start node, at least one end node, no
// isolated nodes when it has more than one node, and a path from the start
// to some end node.
func (g *Graph) Analyze() Analysis {
	nodes := g.Nodes()
	edges := g.Edges()

	result := Analysis{
		StartNodes:          []string{},
		EndNodes:            []string{},
		IsolatedNodes:       []string{},
		ConnectedComponents: [][]string{},
		Issues:              []AnalysisIssue{},
		Status:              StatusHealthy,
	}
	if len(nodes) == 0 {
		result.Issues = append(result.Issues, AnalysisIssue{Code: IssueEmpty, Message: "flow has no nodes"})
		result.Status = StatusWarnings
		return result
	}

	incoming := make(map[string]int, len(nodes))
	outgoing := make(map[string][]string, len(nodes))
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		key := e.Source + "->" + e.Target
		if seen[key] {
			result.Issues = append(result.Issues, AnalysisIssue{
				Code:    IssueDuplicateEdge,
				Message: fmt.Sprintf("duplicate connection %s", key),
				NodeIDs: []string{e.Source, e.Target},
			})
			continue
		}
		seen[key] = true
		incoming[e.Target]++
		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
	}

	for _, n := range nodes {
		hasIn, hasOut := incoming[n.ID] > 0, len(outgoing[n.ID]) > 0
		if !hasIn {
			result.StartNodes = append(result.StartNodes, n.ID)
		}
		if !hasOut {
			result.EndNodes = append(result.EndNodes, n.ID)
		}
		if !hasIn && !hasOut && len(nodes) > 1 {
			result.IsolatedNodes = append(result.IsolatedNodes, n.ID)
		}
		if n.Unresolved {
			result.Issues = append(result.Issues, AnalysisIssue{
				Code:    IssueUnresolved,
				Message: fmt.Sprintf("node %s references unknown instruction %q", n.ID, n.InstructionID),
				NodeIDs: []string{n.ID},
			})
		}
	}

	result.ConnectedComponents = connectedComponents(nodes, edges)

	switch {
	case len(result.StartNodes) == 0:
		result.Issues = append(result.Issues, AnalysisIssue{Code: IssueNoStart, Message: "flow must have a start node with no incoming edges"})
	case len(result.StartNodes) > 1:
		result.Issues = append(result.Issues, AnalysisIssue{
			Code:    IssueMultipleStarts,
			Message: "flow can only have one start node",
			NodeIDs: result.StartNodes,
		})
	}
	if len(result.EndNodes) == 0 {
		result.Issues = append(result.Issues, AnalysisIssue{Code: IssueNoEnd, Message: "flow must have an end node with no outgoing edges"})
	}
	if len(result.IsolatedNodes) > 0 {
		result.Issues = append(result.Issues, AnalysisIssue{
			Code:    IssueIsolated,
			Message: fmt.Sprintf("%d isolated node(s)", len(result.IsolatedNodes)),
			NodeIDs: result.IsolatedNodes,
		})
	}
	if len(nodes) > 1 && len(result.StartNodes) == 1 && len(result.EndNodes) > 0 &&
		!reachesAny(result.StartNodes[0], result.EndNodes, outgoing) {
		result.Issues = append(result.Issues, AnalysisIssue{
			Code:    IssueNoPath,
			Message: "no path from the start node to any end node",
			NodeIDs: result.StartNodes,
		})
	}

	if len(result.Issues) > 0 {
		result.Status = StatusWarnings
	}
	return result
}

// Runnable reports whether the analysis found no issues.
func (a Analysis) Runnable() bool {
	return len(a.Issues) == 0
}

// connectedComponents treats edges as undirected. Components and their
// members are sorted so the output is stable.
func connectedComponents(nodes []Node, edges []Edge) [][]string {
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}

	visited := make(map[string]bool, len(nodes))
	var components [][]string
	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		var cluster []string
		stack := []string{n.ID}
		visited[n.ID] = true
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cluster = append(cluster, id)
			for _, next := range adj[id] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		sort.Strings(cluster)
		components = append(components, cluster)
	}
	return components
}

func reachesAny(start string, targets []string, outgoing map[string][]string) bool {
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if want[id] {
			return true
		}
		for _, next := range outgoing[id] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
