// Package id generates prefixed identifiers for device principals and for
// entities that exist locally before the remote store assigns them an id.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes in use across the sync layer.
const (
	PrefixDevice = "device"
	PrefixTemp   = "tmp"
	PrefixClient = "sse"
	PrefixServer = "srv"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "device-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Temp returns a local placeholder id for an entity the remote has not
// accepted yet. kind is folded into the id so logs stay readable.
func Temp(kind string) string {
	return MustGenerate(PrefixTemp + "_" + kind)
}

// IsTemp reports whether id was produced by Temp.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, PrefixTemp+"_")
}
