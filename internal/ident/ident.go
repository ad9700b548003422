// SPDX-License-Identifier: MIT

// Package ident derives stable internal identifiers for entities that
// originate from external TV backends. Backends choose their own external
// ids freely, so every internal id is namespaced by entity kind and backend
// name before hashing. The same inputs always produce the same id across
// process restarts.
package ident

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Kind namespaces an external id so that entities of different kinds from
// the same backend never collide.
type Kind string

const (
	KindChannel     Kind = "channel"
	KindProgram     Kind = "program"
	KindRecording   Kind = "recording"
	KindTimer       Kind = "timer"
	KindSeriesTimer Kind = "seriestimer"
)

// idNamespace is the fixed UUID namespace for derived ids. Changing it
// invalidates every previously derived id, so it is frozen.
var idNamespace = uuid.MustParse("9f2d64de-5b3a-4ce1-8f6e-2f1c08f14a57")

var fold = cases.Fold()

// ErrNoSeparator reports a composite id without the prefix separator.
var ErrNoSeparator = errors.New("ident: composite id has no separator")

// DeriveID maps (kind, backendName, externalID) to a stable 128-bit
// identifier rendered as 32 lowercase hex characters. Backend names are
// case-folded so lookups agree with the registry's case-insensitive
// name matching.
func DeriveID(kind Kind, backendName, externalID string) string {
	name := []byte(string(kind) + "\x00" + fold.String(backendName) + "\x00" + externalID)
	u := uuid.NewSHA1(idNamespace, name)
	return strings.ReplaceAll(u.String(), "-", "")
}

// Prefix computes the fixed-width session/tuner id prefix for a backend
// implementation key. The prefix depends only on the key, never on the
// session, so it is stable for the lifetime of the backend type.
func Prefix(implementationKey string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(implementationKey))
	return fmt.Sprintf("%08x", h.Sum32())
}

// ComposeSessionID joins a backend prefix and a backend-local id into one
// composite id.
func ComposeSessionID(implementationKey, localID string) string {
	return Prefix(implementationKey) + "_" + localID
}

// SplitSessionID splits a composite id into prefix and backend-local id.
// Returns ErrNoSeparator when the id is not composite; mapping the prefix
// back to a backend is the registry's job.
func SplitSessionID(compositeID string) (prefix, localID string, err error) {
	prefix, localID, ok := strings.Cut(compositeID, "_")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrNoSeparator, compositeID)
	}
	return prefix, localID, nil
}
