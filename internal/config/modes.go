package config

import (
	"fmt"
	"strings"
)

// WriteMode decides when the fingerprint store reaches disk.
type WriteMode string

const (
	// BatchAtEnd persists the new store once, after every document was processed.
	BatchAtEnd WriteMode = "batch"
	// PerDocumentImmediate persists after every fingerprint so a crash keeps progress.
	PerDocumentImmediate WriteMode = "per-document"
)

// ResponseMode decides whether an HTTP trigger waits for the run.
type ResponseMode string

const (
	Synchronous   ResponseMode = "sync"
	FireAndForget ResponseMode = "async"
)

func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch", "batch-at-end", "batch_at_end":
		return BatchAtEnd, nil
	case "per-document", "per-document-immediate", "per_document", "immediate":
		return PerDocumentImmediate, nil
	default:
		return "", fmt.Errorf("unknown write_mode %q (want %q or %q)", s, BatchAtEnd, PerDocumentImmediate)
	}
}

func ParseResponseMode(s string) (ResponseMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync", "synchronous":
		return Synchronous, nil
	case "async", "fire-and-forget", "fire_and_forget":
		return FireAndForget, nil
	default:
		return "", fmt.Errorf("unknown response_mode %q (want %q or %q)", s, Synchronous, FireAndForget)
	}
}

// Normalize rewrites accepted aliases to their canonical spelling.
func (t *Target) Normalize() {
	if m, err := ParseWriteMode(string(t.WriteMode)); err == nil {
		t.WriteMode = m
	}
	if m, err := ParseResponseMode(string(t.ResponseMode)); err == nil {
		t.ResponseMode = m
	}
}
