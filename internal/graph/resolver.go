// Package graph resolves the injection order of a dataset's records.
//
// Records form a forest through their parent references (a Contact under
// an Account, a Task under an Opportunity). Injection must create parents
// before children so that child records can carry the parent's
// externally-assigned identifier.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"crmforge/internal/store"
)

// CycleError reports a parent/child cycle, including a record naming
// itself. Members lists the local IDs still unresolved when the sort
// stalled.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among records: %s", strings.Join(e.Members, ", "))
}

// DanglingReferenceError reports a parent_local_id that names no record in
// the dataset.
type DanglingReferenceError struct {
	LocalID string
	Parent  string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("record %s references missing parent %s", e.LocalID, e.Parent)
}

type node struct {
	localID    string
	objectType store.ObjectType
	children   []*node
	indegree   int
}

// Resolve computes a total order over the records' local IDs such that
// every record appears strictly after its parent. Among records with no
// edge between them, object-type precedence and then local ID break ties,
// so the order is reproducible across runs on identical input.
func Resolve(records []store.DatasetRecord) ([]string, error) {
	nodes := make(map[string]*node, len(records))
	for _, r := range records {
		if _, ok := nodes[r.LocalID]; ok {
			return nil, fmt.Errorf("duplicate local id %s", r.LocalID)
		}
		nodes[r.LocalID] = &node{localID: r.LocalID, objectType: r.ObjectType}
	}

	for _, r := range records {
		if r.ParentLocalID == nil {
			continue
		}
		parent, ok := nodes[*r.ParentLocalID]
		if !ok {
			return nil, &DanglingReferenceError{LocalID: r.LocalID, Parent: *r.ParentLocalID}
		}
		child := nodes[r.LocalID]
		parent.children = append(parent.children, child)
		child.indegree++
	}

	// Kahn's algorithm. The ready set is re-sorted on each pop; dataset
	// sizes here are small enough that simplicity wins over a heap.
	ready := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		if n.indegree == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			pi, pj := ready[i].objectType.InjectionPrecedence(), ready[j].objectType.InjectionPrecedence()
			if pi != pj {
				return pi < pj
			}
			return ready[i].localID < ready[j].localID
		})

		next := ready[0]
		ready = ready[1:]
		order = append(order, next.localID)

		for _, child := range next.children {
			child.indegree--
			if child.indegree == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(nodes) {
		// Whatever never reached indegree 0 is on or below a cycle.
		resolved := make(map[string]bool, len(order))
		for _, id := range order {
			resolved[id] = true
		}
		var members []string
		for id := range nodes {
			if !resolved[id] {
				members = append(members, id)
			}
		}
		sort.Strings(members)
		return nil, &CycleError{Members: members}
	}

	return order, nil
}
