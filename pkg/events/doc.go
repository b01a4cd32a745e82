// Package events provides an in-memory pub/sub broker for slot
// lifecycle events. The engine publishes an event for every borrow,
// return, and failure; subscribers (the operation journal, logging)
// receive them asynchronously on buffered channels and are never
// allowed to block a publish.
package events
