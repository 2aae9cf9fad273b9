// Package cryptoutil provides the hashing primitives the identity
// engine is built on.
//
// It supports:
//   - SHA-256 hashing to hex (content identities) and base64 (digest headers)
//   - Constant-time hash comparison to prevent timing side-channels
package cryptoutil
