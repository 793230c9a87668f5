// Package scheduler executes rules: pure, asynchronous computations over
// fingerprinted inputs that may request other rules' outputs mid-flight.
//
// Each distinct (rule, input fingerprint) pair executes at most once per
// scheduler; concurrent requests for an in-flight pair attach to the running
// execution instead of starting another. Results, failures included, are
// memoized for the life of the scheduler, so re-requesting a known-failed
// node returns the cached failure rather than retrying.
//
// Rule bodies suspend exactly at Get/MultiGet call sites. While suspended,
// the body's worker slot is released back to the pool, so a bounded worker
// count never deadlocks on rules waiting for one another. Wait-for cycles
// among in-flight rules are detected before they can deadlock and reported
// as a structured cycle error.
package scheduler
