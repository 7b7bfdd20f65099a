package worker

import (
	"sync/atomic"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/history"
)

// TaskType identifies what a queued task does.
type TaskType string

// Task types.
const (
	TaskPage     TaskType = "page"
	TaskHistory  TaskType = "history"
	TaskFragment TaskType = "fragment"
)

// Task is one unit of crawl work.
type Task struct {
	Type TaskType
	URL  string
	Kind crawler.Kind

	// OriginalLink is set on page tasks reached through a splash redirect; the
	// record keeps the link of the page that redirected.
	OriginalLink string

	// Set on history tasks: the record awaiting its history and the state
	// driving the listing pagination.
	Record  crawler.HistoryBearer
	History *history.State

	// Gate is set on fragment tasks of a hub whose history is held back until
	// every fragment has been handed to the pipeline.
	Gate *Gate
}

// PageTask builds the initial task for a configured target.
func PageTask(target crawler.Target) Task {
	return Task{Type: TaskPage, URL: target.URL, Kind: target.Kind}
}

// Gate counts down the outstanding fragment tasks of one hub and releases the
// hub's history task when the last one finishes.
type Gate struct {
	remaining atomic.Int64
	next      Task
}

// NewGate holds next until Release has been called n times.
func NewGate(n int, next Task) *Gate {
	g := &Gate{next: next}
	g.remaining.Store(int64(n))
	return g
}

// Release marks one fragment task finished. It returns the held task and true
// exactly once, on the final release.
func (g *Gate) Release() (Task, bool) {
	if g.remaining.Add(-1) != 0 {
		return Task{}, false
	}
	return g.next, true
}

// Remaining reports how many fragment tasks are still outstanding.
func (g *Gate) Remaining() int {
	return int(g.remaining.Load())
}
