package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// EntryKey returns the provider key for a request identity inside a namespace.
// The request identity is hashed so arbitrary URLs stay within store key limits.
func EntryKey(prefix, namespace, requestKey string) string {
	sum := sha256.Sum256([]byte(requestKey))
	return prefix + ":entry:" + namespace + ":" + hex.EncodeToString(sum[:16])
}

// CatalogKey returns the provider key holding the namespace catalog.
func CatalogKey(prefix string) string {
	return prefix + ":catalog"
}

// GenKey returns the generation-store key for a namespace.
func GenKey(prefix, namespace string) string {
	return prefix + ":ns:" + namespace
}

// KeysKey returns the provider key holding the request keys of one namespace.
func KeysKey(prefix, namespace string) string {
	return prefix + ":keys:" + namespace
}
