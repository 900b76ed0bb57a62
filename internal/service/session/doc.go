// Package session implements the client side of the SSO session handshake.
//
// Manager keeps two storage slots: the client token, which authorizes outbound
// requests, and the server token, which records the value the backend last
// acknowledged. The session moves between three states:
//
//	Unauthenticated -> ClientOnly -> Acknowledged -> Unauthenticated
//
// Slot changes that belong to one transition are written as a single
// storage.Mutation. Backend calls are never made while the manager lock is held.
package session
