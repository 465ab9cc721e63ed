// Package testutil provides an in-memory storage.Storage with controllable
// object ages and injectable failures, for tests of the signing and
// lifecycle packages.
package testutil
