// Package registry caches specialist definitions loaded from a slow
// persistent store.
//
// Readers load an immutable snapshot through an atomic pointer and never
// wait on I/O. A single mutex serializes the refresh and hot-reload paths;
// publishing a new snapshot pointer is what completes a refresh. Snapshots
// are never modified after publication, so a caller holding a Specialist
// from an older snapshot keeps a consistent definition for the rest of its
// work.
//
// Compiled system prompts are derived lazily and kept in a bounded LRU.
// Invalidate drops one without touching the definition.
package registry
