// Package component defines the lifecycle contract shared by playurl's
// infrastructure pieces (redis, storage, database, kafka, http server,
// lifecycle runner) and the Registry that starts them in dependency order
// and stops them in reverse.
package component
