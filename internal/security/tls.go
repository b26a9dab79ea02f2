package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// TLSPaths holds the locations of the host certificate files.
type TLSPaths struct {
	CertPath string
	KeyPath  string
}

// LoadOrGenerateTLS loads the host's self-signed certificate from
// dataDir or generates one on demand. Returns a *tls.Config ready for
// the listening side of the channel.
func LoadOrGenerateTLS(dataDir string) (*tls.Config, *TLSPaths, error) {
	paths := &TLSPaths{
		CertPath: filepath.Join(dataDir, "host.crt"),
		KeyPath:  filepath.Join(dataDir, "host.key"),
	}

	if !fileExists(paths.CertPath) || !fileExists(paths.KeyPath) {
		if err := generateCert(paths); err != nil {
			return nil, nil, fmt.Errorf("generate TLS cert: %w", err)
		}
	}

	cert, err := tls.LoadX509KeyPair(paths.CertPath, paths.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load TLS keypair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, paths, nil
}

// ClientTLSConfig builds the dialing side's TLS configuration. By
// default the peer certificate identity is not validated (LAN trust
// model: the host's cert is self-signed and unknown to the client).
// With strict=true the certificate chain and serverName are verified.
func ClientTLSConfig(strict bool, serverName string) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if strict {
		cfg.ServerName = serverName
	} else {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// generateCert creates a self-signed host certificate: RSA-2048 key,
// SHA-256 signature, one year validity, server-auth EKU. SANs cover
// localhost, the machine hostname, and all local IP addresses so LAN
// clients that opt into strict validation can match any of them.
func generateCert(paths *TLSPaths) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}

	dnsNames, ipAddrs := collectSANs()

	template := &x509.Certificate{
		SerialNumber: newSerial(),
		Subject: pkix.Name{
			Organization: []string{"LANMirror"},
			CommonName:   "LANMirror Host",
		},
		DNSNames:           dnsNames,
		IPAddresses:        ipAddrs,
		NotBefore:          time.Now().Add(-time.Hour),
		NotAfter:           time.Now().Add(365 * 24 * time.Hour),
		SignatureAlgorithm: x509.SHA256WithRSA,
		KeyUsage:           x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:        []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return err
	}

	if err := writePEM(paths.CertPath, "CERTIFICATE", certDER); err != nil {
		return err
	}
	return writePEM(paths.KeyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
}

// collectSANs gathers DNS names and IP addresses for the host
// certificate.
func collectSANs() ([]string, []net.IP) {
	dnsNames := []string{"localhost"}
	var ipAddrs []net.IP

	if hostname, err := os.Hostname(); err == nil {
		dnsNames = append(dnsNames, hostname)
	}

	ipAddrs = append(ipAddrs, net.IPv4(127, 0, 0, 1), net.IPv6loopback)

	if ifaces, err := net.Interfaces(); err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				var ip net.IP
				switch v := addr.(type) {
				case *net.IPNet:
					ip = v.IP
				case *net.IPAddr:
					ip = v.IP
				}
				if ip != nil && !ip.IsLoopback() {
					ipAddrs = append(ipAddrs, ip)
				}
			}
		}
	}

	return dnsNames, ipAddrs
}

func writePEM(path, blockType string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: data})
}

func newSerial() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, _ := rand.Int(rand.Reader, max)
	return serial
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
