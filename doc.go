// Package resilient provides the retry engine behind the httpx client.
//
// It schedules backoff waits with decorrelated jitter, runs the
// attempt/classify/sleep loop shared by every retry layer, bounds a whole
// layered call with a hard timeout, and carries the error classification
// wrapper ([Permanent]) and attempt trail ([Attempts]) that
// let a failure cross layer boundaries without losing its real cause.
package resilient
