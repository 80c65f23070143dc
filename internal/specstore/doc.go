// Package specstore provides registry.Store implementations: an in-memory
// store, a YAML file store and an fsnotify watcher that reports edits to the
// file.
package specstore
