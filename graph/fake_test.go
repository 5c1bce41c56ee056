package graph

import (
	"context"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type call struct {
	query  string
	params map[string]any
	write  bool
}

// fakeRunner answers queries from a handler and records every call.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []call
	handle    func(query string, params map[string]any) (*neo4j.EagerResult, error)
	verifyErr error
	closed    bool
}

func (f *fakeRunner) record(query string, params map[string]any, write bool) (*neo4j.EagerResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{query: query, params: params, write: write})
	handle := f.handle
	f.mu.Unlock()
	// Schema statements from Init never reach the handler.
	if handle == nil || isSchema(query) {
		return &neo4j.EagerResult{}, nil
	}
	return handle(query, params)
}

func (f *fakeRunner) RunQuery(_ context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return f.record(query, params, true)
}

func (f *fakeRunner) ReadQuery(_ context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return f.record(query, params, false)
}

func (f *fakeRunner) VerifyConnectivity(context.Context) error { return f.verifyErr }

func (f *fakeRunner) Close(context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRunner) writes() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.write && !isSchema(c.query) {
			out = append(out, c)
		}
	}
	return out
}

func isSchema(query string) bool {
	return strings.HasPrefix(strings.TrimSpace(query), "CREATE CONSTRAINT")
}

func connected(f *fakeRunner) *Store {
	s := NewStore(func(context.Context) (Runner, error) { return f, nil }, nil)
	if err := s.Init(context.Background()); err != nil {
		panic(err)
	}
	return s
}

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func contentNode(hash, result string) neo4j.Node {
	return neo4j.Node{
		ElementId: "c:" + hash,
		Labels:    []string{"Content"},
		Props:     map[string]any{"contentHash": hash, "verificationResult": result},
	}
}

func userNode(id string) neo4j.Node {
	return neo4j.Node{ElementId: "u:" + id, Labels: []string{"User"}, Props: map[string]any{"userId": id}}
}

func uploaded(at int64) neo4j.Relationship {
	return neo4j.Relationship{Type: "UPLOADED", Props: map[string]any{"uploadedAt": at}}
}
