// Package lifecycle removes storage objects after their tracks are deleted.
//
// A deletion produces a Notice. The Processor holds each notice until the
// grace period after the deletion has elapsed, then deletes the object,
// drops any cached playback URL, marks the record purged and publishes a
// completion event. Deletions that keep failing are dead-lettered instead of
// retried forever. A periodic scan removes objects that no record references
// once they are older than the orphan grace window.
//
// Runner connects a Processor to its transports: notices arrive on a Kafka
// topic, deferred notices wait in a Redis delay queue, and the scan runs on
// a ticker.
package lifecycle
