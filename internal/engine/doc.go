// Package engine provides the asynchronous job execution engine.
// Submit persists a PENDING job and hands it to a background goroutine that
// walks a fixed phase table, checkpointing status and progress to the store
// after each phase. Readers observe progress only through the store, so every
// snapshot they see is one the engine committed in order.
package engine
