// Package cron is the scheduler core: the service facade that owns the job
// table, the tick loop that finds due jobs, and the concurrency gate that
// caps how many of them run at once.
//
// Execution is delegated to a Backend and outcomes are handed to a
// Deliverer; neither ever looks inside a job's payload.
package cron
