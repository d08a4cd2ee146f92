// Package provider defines the transport-neutral contract for the generative
// model backend. Implementations live in subpackages.
package provider

import "context"

// Part is one piece of a prompt: inline text or a reference to an uploaded file.
type Part struct {
	Text     string
	FileURI  string
	MimeType string
}

// Request is a single generation call.
type Request struct {
	SystemInstruction string
	Parts             []Part
	// JSON asks the backend for an application/json response body.
	JSON bool
}

// File is a handle to a file uploaded to the provider.
type File struct {
	Name     string
	URI      string
	MimeType string
}

// Generator produces text for a prompt using the given credential.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
}

// FileStore uploads and deletes transient provider-side files.
type FileStore interface {
	UploadFile(ctx context.Context, apiKey string, data []byte, mimeType, displayName string) (File, error)
	DeleteFile(ctx context.Context, apiKey, name string) error
}

// Backend is the full surface used by the analysis layer.
type Backend interface {
	Generator
	FileStore
}
