package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainLog   = "actionbus/log/v1"
	DomainTrace = "actionbus/trace/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalLog renders a log snapshot as canonical JSON.
// Nil and empty logs render identically.
func CanonicalLog(s LogSnapshot) ([]byte, error) {
	obj := map[string]any{
		"action_log":   nonNil(s.ActionLog),
		"main_log":     nonNil(s.MainLog),
		"repeated_log": nonNil(s.RepeatedLog),
		"event_log":    nonNil(s.EventLog),
		"retries_log":  nonNil(s.RetriesLog),
	}
	return MarshalCanonical(obj)
}

// LogDigest fingerprints a log snapshot. Two runs with identical
// execution order produce identical digests.
func LogDigest(s LogSnapshot) (string, error) {
	data, err := CanonicalLog(s)
	if err != nil {
		return "", fmt.Errorf("LogDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainLog, data), nil
}

// CanonicalTrace renders trace entries as canonical JSON.
func CanonicalTrace(entries []TraceEntry) ([]byte, error) {
	arr := make([]any, len(entries))
	for i, e := range entries {
		obj := map[string]any{
			"seq":  e.Seq,
			"kind": e.Kind,
		}
		if e.ActionID != "" {
			obj["action_id"] = e.ActionID
		}
		if e.EventID != "" {
			obj["event_id"] = e.EventID
		}
		if e.Status != "" {
			obj["status"] = e.Status
		}
		arr[i] = obj
	}
	return MarshalCanonical(arr)
}

// TraceDigest fingerprints a run trace.
func TraceDigest(entries []TraceEntry) (string, error) {
	data, err := CanonicalTrace(entries)
	if err != nil {
		return "", fmt.Errorf("TraceDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, data), nil
}

// MustLogDigest is like LogDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustLogDigest(s LogSnapshot) string {
	d, err := LogDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
