// Package tracker models each query's execution as a multi-participant state
// machine and broadcasts every change to subscribers.
//
// States advance idle, analyzing, processing, collaborating, completing,
// finished; error is reachable from any non-terminal state. Finished and
// error are terminal and a terminal session never changes again.
//
// Every mutation pushes an Update to each subscriber's buffered channel,
// waiting at most the broadcast timeout per subscriber. A subscriber that
// cannot keep up is unsubscribed and its channel closed. Broadcasts are
// serialized, so a subscriber sees one session's updates in call order.
//
// The tracker has no timers of its own; callers apply timeouts and remove
// finished sessions with Remove or PruneTerminal.
package tracker
