// Package servicetest provides an in-memory Store for tests of the service
// and API layers.
package servicetest

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/120m4n/infovis/internal/storage"
)

// Call records one store invocation.
type Call struct {
	Op         string
	Collection string
	Pipeline   mongo.Pipeline
	Filter     bson.D
	Projection bson.D
}

// FakeStore answers with the configured functions. A nil function returns an
// empty result (FindOne: storage.ErrNotFound).
type FakeStore struct {
	AggregateFunc func(collection string, pipeline mongo.Pipeline) ([]bson.M, error)
	FindFunc      func(collection string, filter, projection bson.D) ([]bson.M, error)
	FindOneFunc   func(collection string, filter bson.D) (bson.M, error)
	CountFunc     func(collection string, filter bson.D) (int64, error)

	mu    sync.Mutex
	calls []Call
}

func (f *FakeStore) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

// Calls returns a copy of the recorded invocations.
func (f *FakeStore) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeStore) Aggregate(_ context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	f.record(Call{Op: "aggregate", Collection: collection, Pipeline: pipeline})
	if f.AggregateFunc == nil {
		return []bson.M{}, nil
	}
	return f.AggregateFunc(collection, pipeline)
}

func (f *FakeStore) Find(_ context.Context, collection string, filter, projection bson.D) ([]bson.M, error) {
	f.record(Call{Op: "find", Collection: collection, Filter: filter, Projection: projection})
	if f.FindFunc == nil {
		return []bson.M{}, nil
	}
	return f.FindFunc(collection, filter, projection)
}

func (f *FakeStore) FindOne(_ context.Context, collection string, filter bson.D) (bson.M, error) {
	f.record(Call{Op: "find_one", Collection: collection, Filter: filter})
	if f.FindOneFunc == nil {
		return nil, storage.ErrNotFound
	}
	return f.FindOneFunc(collection, filter)
}

func (f *FakeStore) Count(_ context.Context, collection string, filter bson.D) (int64, error) {
	f.record(Call{Op: "count", Collection: collection, Filter: filter})
	if f.CountFunc == nil {
		return 0, nil
	}
	return f.CountFunc(collection, filter)
}

// HasStage reports whether pipeline contains a stage with the operator op.
func HasStage(pipeline mongo.Pipeline, op string) bool {
	for _, stage := range pipeline {
		if len(stage) > 0 && stage[0].Key == op {
			return true
		}
	}
	return false
}

// SortDirection returns the $sort value on "count", or 0 when absent.
func SortDirection(pipeline mongo.Pipeline) int {
	for _, stage := range pipeline {
		if len(stage) == 0 || stage[0].Key != "$sort" {
			continue
		}
		if spec, ok := stage[0].Value.(bson.D); ok && len(spec) > 0 && spec[0].Key == "count" {
			if dir, ok := spec[0].Value.(int); ok {
				return dir
			}
		}
	}
	return 0
}
