// Package peripheral implements the shared correlation and dispatch core used by every
// board peripheral facade (digital IO, SPI, BLE local attributes).
//
// The package provides:
//   - ValueStore: last-known value of a stateful peripheral
//   - ObserverQueue and Future: strict FIFO waiters for in-flight blocking requests
//   - EventHub: persistent listeners with add and replace registration modes
//   - Classifier: turns decoded transport payloads into a closed set of notifications
//   - Dispatcher: routes notifications to the store, the queue, the hub and the alert sink
//
// Facades issue Commands through an injected Sender and receive notifications through
// their Dispatcher. Ordering is the only correlation key: the Kth waiter enqueued on a
// peripheral is resolved by the Kth reply delivered to it.
package peripheral
