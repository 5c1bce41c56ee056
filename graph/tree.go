package graph

import (
	"slices"
	"sort"

	"credify/models"
)

// BuildForest turns upload chains into a forest of uploaders. Each chain
// lists user ids in path order, farthest from the content first.
//
// The first pass records every user and the parent->child adjacency; the
// second assembles trees from the users that have no parent. Children and
// roots are sorted by userId so the shape does not depend on the order the
// driver returned paths in.
func BuildForest(chains [][]string) []*models.UserNode {
	seen := make(map[string]bool)
	children := make(map[string]map[string]bool)
	hasParent := make(map[string]bool)
	var heads []string

	for _, chain := range chains {
		chain = compact(chain)
		if len(chain) == 0 {
			continue
		}
		heads = append(heads, chain[0])
		for i, id := range chain {
			seen[id] = true
			if i == 0 {
				continue
			}
			parent := chain[i-1]
			if children[parent] == nil {
				children[parent] = make(map[string]bool)
			}
			children[parent][id] = true
			hasParent[id] = true
		}
	}

	var roots []string
	for id := range seen {
		if !hasParent[id] {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 && len(heads) > 0 {
		// Every user has a parent, so the chains form a cycle. Fall back
		// to where the paths started.
		for _, h := range heads {
			if !slices.Contains(roots, h) {
				roots = append(roots, h)
			}
		}
	}
	sort.Strings(roots)

	forest := make([]*models.UserNode, 0, len(roots))
	for _, id := range roots {
		forest = append(forest, assemble(id, children, map[string]bool{}))
	}
	return forest
}

func assemble(id string, children map[string]map[string]bool, onPath map[string]bool) *models.UserNode {
	node := &models.UserNode{UserID: id, Children: []*models.UserNode{}}
	onPath[id] = true
	defer delete(onPath, id)

	kids := make([]string, 0, len(children[id]))
	for child := range children[id] {
		if !onPath[child] {
			kids = append(kids, child)
		}
	}
	sort.Strings(kids)
	for _, child := range kids {
		node.Children = append(node.Children, assemble(child, children, onPath))
	}
	return node
}

// compact drops empty ids and immediate repeats.
func compact(chain []string) []string {
	out := make([]string, 0, len(chain))
	for _, id := range chain {
		if id == "" || (len(out) > 0 && out[len(out)-1] == id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
