// Package identity computes content identities: stable SHA-256 digests
// of canonicalized content values, formatted as "sha256-<hex>".
//
// An identity is insensitive to mapping key order and to the presence
// of excluded fields, and changes whenever any included field changes.
// It serves as the HTTP entity validator for a resource's machine
// representation.
package identity
