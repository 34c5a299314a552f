// Package demo provides a small, self-contained task pipeline for
// cmd/stardag's build command to drive: it exists purely so the CLI has
// something real to schedule and report on, grounded on the same
// task.Base/target.InMemoryStore conventions as internal/scheduler's
// test fixtures.
package demo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/target"
	"github.com/stardag-dev/stardag-go/internal/task"
)

var ns = task.Namespace("stardag.demo")

// Store backs every demo task's output for the lifetime of one CLI
// invocation. A fresh store means a fresh build never observes a prior
// run's outputs as already complete.
type Store = target.InMemoryStore

// NewStore allocates a Store for a single build.
func NewStore() *Store { return target.NewInMemoryStore() }

// RangeTask produces the sum 1..N, standing in for a leaf data-fetch
// step that has no dependencies of its own.
type RangeTask struct {
	task.Base
	N     int64
	store *Store
}

// NewRangeTask builds a RangeTask summing 1..n into store.
func NewRangeTask(store *Store, n int64) *RangeTask {
	return &RangeTask{N: n, store: store}
}

func (t *RangeTask) TypeID() task.TypeID { return ns("range") }
func (t *RangeTask) Version() string     { return "1" }
func (t *RangeTask) Fields() []task.Field {
	return []task.Field{{Name: "n", Value: task.Int(t.N)}}
}
func (t *RangeTask) ID() uuid.UUID { return t.ComputeID(t) }
func (t *RangeTask) Output() target.Target {
	return target.NewInMemoryTarget(t.store, "range/"+t.ID().String())
}
func (t *RangeTask) Complete(ctx context.Context) (bool, error) { return t.CompleteViaOutput(ctx, t) }
func (t *RangeTask) Run(ctx context.Context, _ task.Generator) error {
	var sum int64
	for i := int64(1); i <= t.N; i++ {
		sum += i
	}
	target.NewInMemoryTarget(t.store, "range/"+t.ID().String()).Write(sum)
	return nil
}

// SumTask adds a constant to a RangeTask's output, giving the pipeline
// a second stage with a real static dependency.
type SumTask struct {
	task.Base
	Of     *RangeTask
	Offset int64
	store  *Store
}

// NewSumTask builds a SumTask that adds offset to of's eventual output.
func NewSumTask(store *Store, of *RangeTask, offset int64) *SumTask {
	return &SumTask{Of: of, Offset: offset, store: store}
}

func (t *SumTask) TypeID() task.TypeID { return ns("sum") }
func (t *SumTask) Version() string     { return "1" }
func (t *SumTask) Fields() []task.Field {
	return []task.Field{
		{Name: "of", Value: task.TaskValue(t.Of)},
		{Name: "offset", Value: task.Int(t.Offset)},
	}
}
func (t *SumTask) ID() uuid.UUID          { return t.ComputeID(t) }
func (t *SumTask) Requires() task.TaskStruct { return task.Of(t.Of) }
func (t *SumTask) Output() target.Target {
	return target.NewInMemoryTarget(t.store, "sum/"+t.ID().String())
}
func (t *SumTask) Complete(ctx context.Context) (bool, error) { return t.CompleteViaOutput(ctx, t) }
func (t *SumTask) Run(ctx context.Context, _ task.Generator) error {
	v, ok := target.NewInMemoryTarget(t.store, "range/"+t.Of.ID().String()).Read()
	if !ok {
		return fmt.Errorf("stardag/demo: sum task ran before its dependency's output was written")
	}
	total := v.(int64) + t.Offset
	target.NewInMemoryTarget(t.store, "sum/"+t.ID().String()).Write(total)
	return nil
}

// ReportTask is the pipeline's terminal node: it depends on every
// SumTask given to it and renders a one-line summary string, the value
// the build command ultimately prints.
type ReportTask struct {
	task.Base
	Sums  []*SumTask
	store *Store
}

// NewReportTask builds the report over sums.
func NewReportTask(store *Store, sums ...*SumTask) *ReportTask {
	return &ReportTask{Sums: sums, store: store}
}

func (t *ReportTask) TypeID() task.TypeID { return ns("report") }
func (t *ReportTask) Version() string     { return "1" }
func (t *ReportTask) Fields() []task.Field {
	vals := make([]task.Value, len(t.Sums))
	for i, s := range t.Sums {
		vals[i] = task.TaskValue(s)
	}
	return []task.Field{{Name: "sums", Value: task.List(vals...)}}
}
func (t *ReportTask) ID() uuid.UUID { return t.ComputeID(t) }
func (t *ReportTask) Requires() task.TaskStruct {
	seq := make(task.Seq, len(t.Sums))
	for i, s := range t.Sums {
		seq[i] = task.Of(s)
	}
	return seq
}
func (t *ReportTask) Output() target.Target {
	return target.NewInMemoryTarget(t.store, "report/"+t.ID().String())
}
func (t *ReportTask) Complete(ctx context.Context) (bool, error) { return t.CompleteViaOutput(ctx, t) }
func (t *ReportTask) Run(ctx context.Context, _ task.Generator) error {
	total := int64(0)
	for _, s := range t.Sums {
		v, ok := target.NewInMemoryTarget(t.store, "sum/"+s.ID().String()).Read()
		if !ok {
			return fmt.Errorf("stardag/demo: report task ran before sum task %s finished", s.ID())
		}
		total += v.(int64)
	}
	report := fmt.Sprintf("grand total across %d branch(es): %d", len(t.Sums), total)
	target.NewInMemoryTarget(t.store, "report/"+t.ID().String()).Write(report)
	return nil
}

func init() {
	errNotTransportable := fmt.Errorf("stardag/demo: demo tasks are constructed in-process and never transport-decoded")
	task.Register(ns("range"), func(string, map[string]json.RawMessage) (task.Task, error) {
		return nil, errNotTransportable
	})
	task.Register(ns("sum"), func(string, map[string]json.RawMessage) (task.Task, error) {
		return nil, errNotTransportable
	})
	task.Register(ns("report"), func(string, map[string]json.RawMessage) (task.Task, error) {
		return nil, errNotTransportable
	})
}

// BuildPipeline assembles the demo's two parallel range/sum branches
// fanning in to one report task. The branches share no upstream task,
// so this is a fan-in tree rather than a diamond.
func BuildPipeline(store *Store, n int64) *ReportTask {
	left := NewRangeTask(store, n)
	right := NewRangeTask(store, n+1)
	sumLeft := NewSumTask(store, left, 10)
	sumRight := NewSumTask(store, right, 20)
	return NewReportTask(store, sumLeft, sumRight)
}
