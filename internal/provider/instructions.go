package provider

import _ "embed"

// BaseInstructions is sent upstream under ChatGPT auth. The ChatGPT
// backend expects exactly these instructions alongside store=false, so
// they override whatever the caller supplied.
//
//go:embed prompt.md
var BaseInstructions string

// DefaultInstructions is the minimal fallback injected when a request
// reaches a Responses provider without instructions of its own; the
// Responses API requires the field.
const DefaultInstructions = "You are a helpful coding assistant. Keep responses concise and accurate."
