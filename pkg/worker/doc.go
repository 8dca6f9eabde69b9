// Package worker provides the background worker that drives weft graph runs.
//
// Workers consume tasks from a task queue and execute them against a
// runtime: start-run tasks begin a graph run on a thread, deliver-reply
// tasks post reviewer messages into a review channel. Tasks are claimed
// under a visibility lease, so a worker that dies mid-task does not strand
// the work; the queue redelivers it to the next worker.
//
// Multiple workers can safely share one queue. Most applications construct
// workers through the helpers in the weft root package, which wire the
// runtime, queue, and channel together with sensible defaults.
package worker
