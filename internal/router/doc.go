// Package router implements the Message Router component.
//
// The Message Router:
//   - Decodes push frames from the connection manager
//   - Queues listing deltas in an unbounded FIFO so the socket reader never blocks
//   - Dispatches deltas to one handler from a single goroutine, in arrival order
//   - Counts unknown and malformed frames, which are logged and dropped
package router
