package security

import (
	"crypto/tls"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// LoadPKCS12 loads a host certificate and private key from a PKCS#12
// file, optionally password-protected. A wrong password surfaces as a
// wrapped decryption error, never a crash.
func LoadPKCS12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read PKCS#12 file: %w", err)
	}

	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode PKCS#12 %s: %w", path, err)
	}

	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// ServerTLSFromPKCS12 builds a listening-side TLS configuration from a
// PKCS#12 file.
func ServerTLSFromPKCS12(path, password string) (*tls.Config, error) {
	cert, err := LoadPKCS12(path, password)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
