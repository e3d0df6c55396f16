// Package cron enqueues jobs on recurring schedules.
//
// An [Entry] names a cron expression and the job (queue, tag, args) to
// enqueue each time it fires. The [Scheduler] evaluates entries on every
// tick and enqueues those that are due.
//
// Schedules use the standard 5-field syntax ("0 9 * * 1-5") or descriptors
// such as "@hourly" and "@every 30s".
//
// The scheduler keeps its state in memory, so run it in exactly one
// process per namespace; every running scheduler fires every entry.
package cron
