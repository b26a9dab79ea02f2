// Package security provides the transport-security primitives for the
// streaming channel:
//
//   - Self-signed TLS certificate generation for LAN hosts (RSA-2048,
//     SHA-256, ~1 year validity, server-auth extended key usage)
//   - PEM persistence of generated certificates and keys
//   - PKCS#12 certificate loading, optionally password-protected
//   - Client TLS configuration for the LAN trust model (peer identity
//     not validated by default, strict hostname validation opt-in)
package security
