// Package app wires configuration, storage, the SSO client and the session
// manager together and implements the CLI commands on top of them.
package app
