// Package tlsidentity loads a server TLS certificate from a PKCS#12
// identity bundle (spec.md §6 "the server loads a PKCS#12 identity").
// No repo in the retrieved example pack performs PKCS#12 decoding, so
// this adopts the ecosystem library rather than hand-rolling ASN.1/PFX
// parsing.
package tlsidentity

import (
	"crypto/tls"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// LoadServerCertificate decodes a PKCS#12 bundle at path into a
// tls.Certificate suitable for http.Server.TLSConfig.
func LoadServerCertificate(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read pkcs12 bundle: %w", err)
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode pkcs12 bundle: %w", err)
	}

	chain := [][]byte{cert.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// NewServerTLSConfig builds a minimal server-side tls.Config around a
// single loaded identity. Peer authentication is out of scope (spec.md
// §1 non-goals: "no TLS peer authentication").
func NewServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}
}
