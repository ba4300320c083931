// Package manager holds the pluggable policies that decide which Ruby
// executable to probe for a workspace.
package manager

import (
	"errors"
	"fmt"
)

// ID names a version-manager integration. The set is closed; dependent
// tooling and configuration refer to these identifiers.
type ID string

const (
	// IDConfigured probes an explicitly configured executable path. The
	// only integration implemented today.
	IDConfigured ID = "configured"

	// Named extension points. Selecting one fails validation until the
	// integration lands.
	IDRbenv     ID = "rbenv"
	IDRvm       ID = "rvm"
	IDChruby    ID = "chruby"
	IDAsdf      ID = "asdf"
	IDShadowenv ID = "shadowenv"
)

// ErrUnsupported is returned for recognized manager IDs whose integration
// is not implemented.
var ErrUnsupported = errors.New("manager: version manager integration not implemented")

// knownIDs is the closed enumeration accepted in configuration.
var knownIDs = map[ID]struct{}{
	IDConfigured: {},
	IDRbenv:      {},
	IDRvm:        {},
	IDChruby:     {},
	IDAsdf:       {},
	IDShadowenv:  {},
}

// ParseID validates a configured manager identifier. Empty means
// IDConfigured.
func ParseID(s string) (ID, error) {
	if s == "" {
		return IDConfigured, nil
	}
	id := ID(s)
	if _, ok := knownIDs[id]; !ok {
		return "", fmt.Errorf("unknown version manager %q", s)
	}
	return id, nil
}
