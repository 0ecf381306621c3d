package testutil

import (
	"context"
	"sync"

	"github.com/roach88/n1qlorm/internal/store"
)

// QueryCall is one statement received by a ScriptedQuerier.
type QueryCall struct {
	Statement string
	Options   store.QueryOptions
}

type scripted struct {
	result *store.Result
	err    error
}

// ScriptedQuerier is a store.Querier that replays queued responses in
// order and records every call. With the queue empty it returns an empty
// result.
type ScriptedQuerier struct {
	mu        sync.Mutex
	responses []scripted
	calls     []QueryCall
}

// NewScriptedQuerier creates a querier with no queued responses.
func NewScriptedQuerier() *ScriptedQuerier {
	return &ScriptedQuerier{}
}

// Respond queues a result.
func (q *ScriptedQuerier) Respond(result *store.Result) *ScriptedQuerier {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses = append(q.responses, scripted{result: result})
	return q
}

// Fail queues an error.
func (q *ScriptedQuerier) Fail(err error) *ScriptedQuerier {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses = append(q.responses, scripted{err: err})
	return q
}

// Calls returns the recorded calls.
func (q *ScriptedQuerier) Calls() []QueryCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueryCall(nil), q.calls...)
}

// Query implements store.Querier.
func (q *ScriptedQuerier) Query(_ context.Context, statement string, opts store.QueryOptions) (*store.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, QueryCall{Statement: statement, Options: opts})
	if len(q.responses) == 0 {
		return &store.Result{}, nil
	}
	next := q.responses[0]
	q.responses = q.responses[1:]
	if next.err != nil {
		return nil, next.err
	}
	if next.result == nil {
		return &store.Result{}, nil
	}
	return next.result, nil
}
