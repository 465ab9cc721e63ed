// Package access decides whether a caller may act on a track. The gate loads
// the authoritative record on every call and never caches a decision, so
// ownership, grant and visibility changes take effect immediately.
//
// A missing, deleted or purged track is NotFound for everyone. An existing
// track the caller has no right on is Forbidden. Denials are audit-logged at
// warn level with the resource id, caller id, action and reason.
package access
