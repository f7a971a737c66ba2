// Package syncmill is an incremental synchronization engine that mirrors
// paginated, rate-limited remote record-keeping APIs into MySQL.
//
// The engine is organized leaf-first:
//
//   - pkg/source fetches pages: a rate-limited fetcher with exponential
//     backoff on throttling, a pagination walker for cursor and offset
//     sources, and an adaptive date-window partitioner for sources that
//     silently truncate large result sets.
//   - pkg/schema discovers remote field metadata and evolves the
//     destination schema additively, producing the run's column mapping.
//   - pkg/writer normalizes record values and applies idempotent keyed
//     upserts, resolving parent references across candidate tables.
//   - pkg/orchestrator sequences a run per job and guarantees at most
//     one in-flight run per job.
//   - internal/scheduler triggers runs on cron schedules.
//
// Jobs are pure configuration: one generic engine consumes every job
// description, so adding a remote resource type never means adding code.
package syncmill
