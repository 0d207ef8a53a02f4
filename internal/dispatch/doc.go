// Package dispatch routes reply lines from a book reader to the command that
// asked for them.
//
// The reader answers strictly in order and its replies carry no request id,
// so routing is positional: exactly one command is active at a time, and
// every inbound line belongs to it.
//
// Key features:
//   - Strict FIFO: a command's directive is written only after the previous
//     command has consumed its whole reply
//   - Commands that expect no reply (quit, exit, zero-move answers) complete
//     without stalling the commands queued behind them
//   - Unbounded queue; backpressure is the caller's concern
//   - Single owner: Loop runs the Dispatcher on one goroutine, fed by a pump
//     goroutine reading lines and by Submit from any number of callers
//
// Error handling:
//   - Reader EOF or read error → active and queued commands fail with ErrProcessTerminated
//   - Directive write failure → same, wrapping ErrWrite
//   - Unparseable header → ErrProtocol, dispatcher halts
//   - A line before any directive was written → ErrProtocol, dispatcher halts
//   - Surplus line after a completed reply, nothing waiting → logged and dropped
//   - Malformed data line under a valid header → that command fails, routing continues
//   - Context cancellation → pending commands fail with ErrClosed
//
// No timeouts are applied here; callers bound their own waits.
package dispatch
