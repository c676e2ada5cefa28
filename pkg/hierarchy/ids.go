package hierarchy

import (
	"strings"
)

// DefaultIDPrefix is the transport prefix the upstream document platform
// attaches to identifiers on its wire format. The prefix is stripped before
// storage and re-added only when calling back out to the platform.
const DefaultIDPrefix = "b."

// IDCodec converts external identifiers between their transport form and the
// normalized form used everywhere inside this system.
type IDCodec struct {
	prefix string
}

// NewIDCodec creates a codec for the given transport prefix. An empty prefix
// selects DefaultIDPrefix.
func NewIDCodec(prefix string) IDCodec {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return IDCodec{prefix: prefix}
}

// Normalize strips the transport prefix if present. Already-normalized ids
// pass through unchanged, so Normalize is idempotent.
func (c IDCodec) Normalize(externalID string) string {
	return strings.TrimPrefix(externalID, c.prefix)
}

// Denormalize re-adds the transport prefix for outbound calls. Ids that
// already carry the prefix pass through unchanged.
func (c IDCodec) Denormalize(externalID string) string {
	if strings.HasPrefix(externalID, c.prefix) {
		return externalID
	}
	return c.prefix + externalID
}
