// Package storage provides session-scoped key/value slots for the session manager.
//
// Three backends are available: an in-memory map for tests and embedding, a YAML
// file for the command-line tool, and Redis for sessions shared between processes.
// Every backend applies a Mutation atomically, so a pair of slots is never observed
// half-updated.
package storage
