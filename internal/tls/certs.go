// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package tls generates development certificates for the API listener and
// loads its TLS configuration.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names written by SaveCertificates.
const (
	CACertFile     = "root-ca.crt"
	CAKeyFile      = "root-ca.key"
	ServerCertFile = "server.crt"
	ServerKeyFile  = "server.key"
)

const (
	caValidity     = 10 * 365 * 24 * time.Hour
	serverValidity = 365 * 24 * time.Hour
	organization   = "accountd"
	serverCommonCN = "accountd-api"
)

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateCA creates a new root CA for signing development certificates.
func GenerateCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_KEY_FAILED").With("subject", "ca").Wrap(err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   "accountd development CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(caValidity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	cert, err := createCertificate(template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a server certificate signed by ca. Each host is
// added as an IP SAN if it parses as an IP, otherwise as a DNS SAN. With no
// hosts the certificate covers localhost and 127.0.0.1. validFor <= 0 means
// one year.
func GenerateServerCert(ca *CA, hosts []string, validFor time.Duration) (*ServerCert, error) {
	if ca == nil || ca.Certificate == nil || ca.PrivateKey == nil {
		return nil, oops.Code("TLS_CA_INVALID").Errorf("a CA is required to sign the server certificate")
	}
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	if validFor <= 0 {
		validFor = serverValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_KEY_FAILED").With("subject", "server").Wrap(err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   serverCommonCN,
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.Add(validFor),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	cert, err := createCertificate(template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// SaveCertificates writes the CA and, if given, the server certificate to
// dir using the file names above. Keys are written with mode 0600.
func SaveCertificates(dir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("dir", dir).Wrap(err)
	}
	if err := saveCert(filepath.Join(dir, CACertFile), ca.Certificate); err != nil {
		return err
	}
	if err := saveKey(filepath.Join(dir, CAKeyFile), ca.PrivateKey); err != nil {
		return err
	}
	if server == nil {
		return nil
	}
	if err := saveCert(filepath.Join(dir, ServerCertFile), server.Certificate); err != nil {
		return err
	}
	return saveKey(filepath.Join(dir, ServerKeyFile), server.PrivateKey)
}

// LoadCA reads a CA previously written by SaveCertificates.
func LoadCA(dir string) (*CA, error) {
	certPath := filepath.Join(dir, CACertFile)
	keyPath := filepath.Join(dir, CAKeyFile)

	certBlock, err := readPEM(certPath, "CERTIFICATE")
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", certPath).Wrap(err)
	}

	keyBlock, err := readPEM(keyPath, "EC PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	if !cert.IsCA {
		return nil, oops.Code("TLS_CA_INVALID").With("path", certPath).Errorf("certificate is not a CA")
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// LoadServerConfig loads a PEM certificate and key pair into a TLS config
// for the API listener.
func LoadServerConfig(certFile, keyFile string) (*cryptotls.Config, error) {
	pair, err := cryptotls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", certFile).
			With("key_file", keyFile).
			Wrap(err)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_SERIAL_FAILED").Wrap(err)
	}
	return serial, nil
}

func createCertificate(template, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, oops.Code("TLS_CERT_FAILED").With("common_name", template.Subject.CommonName).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_CERT_FAILED").With("common_name", template.Subject.CommonName).Wrap(err)
	}
	return cert, nil
}

func readPEM(path, blockType string) (*pem.Block, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Errorf("no %s PEM block in %s", blockType, path)
	}
	return block, nil
}

func saveCert(path string, cert *x509.Certificate) error {
	return writePEM(path, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func saveKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return writePEM(path, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
