// Package survey implements the survey engine: configuration
// validation, per-survey submission schemas compiled from the field
// list, the submission/verification lifecycle, aggregation of collected
// answers, and a bounded cache of live survey instances.
//
// The package performs no logging and no HTTP; callers map its sentinel
// errors to transport responses. The backing document store is the
// system of record, the cache only an accelerator: data flows store to
// cache, never back.
package survey
