package types

import (
	"math/big"

	"github.com/google/uuid"
)

// MaxUIDLength is the longest UID the UI value representation allows.
const MaxUIDLength = 64

// IsValidUID reports whether uid is a well-formed dotted numeric identifier:
// non-empty components of digits, no leading zeros, at most 64 characters.
func IsValidUID(uid string) bool {
	if uid == "" || len(uid) > MaxUIDLength {
		return false
	}
	start := 0
	for i := 0; i <= len(uid); i++ {
		if i < len(uid) && uid[i] != '.' {
			if uid[i] < '0' || uid[i] > '9' {
				return false
			}
			continue
		}
		component := uid[start:i]
		if component == "" || (len(component) > 1 && component[0] == '0') {
			return false
		}
		start = i + 1
	}
	return true
}

// UIDName returns a human readable name for any registered UID.
func UIDName(uid string) string {
	if info, ok := sopClassRegistry[uid]; ok {
		return info.Name
	}
	if info, ok := transferSyntaxRegistry[uid]; ok {
		return info.Name
	}
	if uid == ApplicationContextUID {
		return "DICOM Application Context"
	}
	return uid
}

// NewUID generates a UID under the 2.25 arc from a random UUID.
func NewUID() string {
	u := uuid.New()
	return "2.25." + new(big.Int).SetBytes(u[:]).String()
}
