// Package constants This file contains all the constants that can be reused across the project
package constants

const (
	MB       = int64(1024 * 1024)
	GB       = 1024 * MB
	FilePerm = 0644

	// BurnChunkSize is the buffer size used when streaming an image onto a
	// device and when running erase passes.
	BurnChunkSize = 4 * 1024 * 1024
	// DigestChunkSize is the buffer size used when hashing.
	DigestChunkSize = 1024 * 1024
)
