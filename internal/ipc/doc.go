// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The request and response types reuse the api DTOs so the socket and the
// HTTP routes describe tasks and records identically. Add new endpoints by
// pairing a service method with a Client wrapper of the same name.
package ipc
