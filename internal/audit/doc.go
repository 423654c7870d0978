// Package audit implements async event dispatching for security-relevant
// account operations (logins, refreshes, verifications, revocations).
//
// The [Dispatcher] is a buffered relay between the engine and a
// caller-supplied [Sink]; it never filters events and never blocks the
// authentication path when configured to drop on a full buffer.
package audit
