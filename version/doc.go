// Package version reports the build identity of the running binary.
package version
