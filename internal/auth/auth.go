// Package auth verifies HTTP Basic credentials against a static table.
//
// The decoded "user:password" string is used verbatim as the lookup key; it
// is never split or normalized. A credential either maps to a privilege label
// or it does not, and every malformed input is simply "no privilege".
package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode/utf8"
)

// CredentialTable maps a "user:password" credential to a privilege label.
//
// A CredentialTable is read-only after construction and safe for concurrent
// use without locking.
type CredentialTable struct {
	entries map[string]string
}

// NewCredentialTable builds a [CredentialTable] from a copy of entries.
func NewCredentialTable(entries map[string]string) CredentialTable {
	cp := make(map[string]string, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return CredentialTable{entries: cp}
}

// Len returns the number of credentials in the table.
func (t CredentialTable) Len() int {
	return len(t.entries)
}

// Lookup returns the privilege for an exact credential match. A credential
// mapped to an empty label grants nothing.
func (t CredentialTable) Lookup(credential string) (string, bool) {
	privilege, ok := t.entries[credential]
	if !ok || privilege == "" {
		return "", false
	}
	return privilege, true
}

// CheckAuth returns the privilege granted by the request's Authorization
// header. ok is false when the header is missing, uses a scheme other than
// Basic, does not decode, or names an unknown or unprivileged credential.
func (t CredentialTable) CheckAuth(header http.Header) (privilege string, ok bool) {
	credential, ok := basicCredential(header.Get("Authorization"))
	if !ok {
		return "", false
	}
	return t.Lookup(credential)
}

// basicCredential extracts the decoded payload of a Basic authorization value.
func basicCredential(value string) (string, bool) {
	scheme, payload, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "basic") {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
