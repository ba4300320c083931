// Package wire implements the delimiter-framed text format the activation
// probe uses to report structured data over its stderr stream.
//
// The flags field (field 2) carries comma-joined capability tag names such
// as "yjit" or "zjit", never a bare truthy marker: a frame whose flags field
// reads "true" decodes to no capabilities. Probe authors must emit the tag
// names from the closed set below.
//
// Known limitation: values containing one of the delimiter strings corrupt
// the frame. The delimiters are chosen to make accidental collision
// astronomically unlikely; there is no escaping.
package wire

import (
	"errors"
	"strings"
)

const (
	// FrameDelimiter marks the start and end of the payload inside a noisy
	// output stream.
	FrameDelimiter = "RUBYENVD_ACTIVATION_DELIMITER_6d94fba3"

	// FieldDelimiter separates top-level fields.
	FieldDelimiter = "RUBYENVD_FIELD_4a1c"

	// KVDelimiter splits an environment entry into name and value.
	KVDelimiter = "RUBYENVD_KV_9f27"
)

// ErrFrameMissing is returned when the raw text does not contain a payload
// bounded by two frame delimiters.
var ErrFrameMissing = errors.New("wire: activation frame not found in output")

// Capability is a recognized JIT capability tag reported by the probe.
type Capability string

const (
	CapYJIT Capability = "yjit"
	CapZJIT Capability = "zjit"
)

// knownCapabilities is the closed set of tags the decoder accepts.
// Unknown tags in the flags field are dropped, not errors.
var knownCapabilities = map[Capability]struct{}{
	CapYJIT: {},
	CapZJIT: {},
}

// Payload is the structured content of one activation frame.
type Payload struct {
	Version      string
	GemPaths     []string
	Capabilities []Capability
	Env          map[string]string
}

// Encode renders p as a single activation frame. It is the exact inverse of
// Decode for payloads whose values contain no delimiter substrings.
func Encode(p Payload) string {
	var b strings.Builder
	b.WriteString(FrameDelimiter)
	b.WriteString(p.Version)
	b.WriteString(FieldDelimiter)
	b.WriteString(strings.Join(p.GemPaths, ","))
	b.WriteString(FieldDelimiter)

	tags := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		tags = append(tags, string(c))
	}
	b.WriteString(strings.Join(tags, ","))

	for name, value := range p.Env {
		b.WriteString(FieldDelimiter)
		b.WriteString(name)
		b.WriteString(KVDelimiter)
		b.WriteString(value)
	}
	b.WriteString(FrameDelimiter)
	return b.String()
}

// Decode extracts the activation frame from raw and parses it. Diagnostic
// noise before the first and after the last frame delimiter is tolerated.
// Decode fails only when no complete frame is present; malformed individual
// fields degrade to empty values instead of errors.
func Decode(raw string) (Payload, error) {
	first := strings.Index(raw, FrameDelimiter)
	if first < 0 {
		return Payload{}, ErrFrameMissing
	}
	last := strings.LastIndex(raw, FrameDelimiter)
	if last == first {
		return Payload{}, ErrFrameMissing
	}

	inner := raw[first+len(FrameDelimiter) : last]
	fields := strings.Split(inner, FieldDelimiter)

	p := Payload{
		Env: map[string]string{},
	}

	p.Version = fields[0]

	if len(fields) > 1 {
		p.GemPaths = splitGemPaths(fields[1])
	}
	if len(fields) > 2 {
		p.Capabilities = parseCapabilities(fields[2])
	}

	if len(fields) > 3 {
		for _, entry := range fields[3:] {
			name, value, _ := strings.Cut(entry, KVDelimiter)
			if name == "" {
				continue
			}
			// Last write wins on duplicate names.
			p.Env[name] = value
		}
	}

	return p, nil
}

// splitGemPaths splits the comma-joined gem path list. Paths containing
// commas are not supported.
func splitGemPaths(field string) []string {
	if field == "" {
		return []string{}
	}
	return strings.Split(field, ",")
}

func parseCapabilities(field string) []Capability {
	if field == "" {
		return nil
	}
	var caps []Capability
	for _, tag := range strings.Split(field, ",") {
		c := Capability(strings.TrimSpace(tag))
		if _, ok := knownCapabilities[c]; ok {
			caps = append(caps, c)
		}
	}
	return caps
}
