package httpapi

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

const selfSignedCertValidity = 14 * 24 * time.Hour

// LoadOrCreateTLSCert returns a TLS certificate for certPath/keyPath,
// generating and writing a self-signed one for extraIPs/extraHosts unless
// both files already exist. Only localhost is ever served over plain HTTP
// (see ListenAndServe's host check); every other listener needs this.
func LoadOrCreateTLSCert(certPath, keyPath string, extraIPs []net.IP, extraHosts []string) (tls.Certificate, error) {
	if _, err := os.Stat(certPath); err == nil {
		if _, err := os.Stat(keyPath); err == nil {
			return tls.LoadX509KeyPair(certPath, keyPath)
		}
	}

	certDER, keyDER, err := generateSelfSigned(extraIPs, extraHosts)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certPath, certPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("httpapi: writing cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("httpapi: writing key: %w", err)
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}

func generateSelfSigned(extraIPs []net.IP, extraHosts []string) (certDER, keyDER []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("httpapi: generating key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("httpapi: generating serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "lighthoused autogenerated cert"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(selfSignedCertValidity),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		IPAddresses:  append([]net.IP{net.ParseIP("127.0.0.1")}, extraIPs...),
		DNSNames:     append([]string{"localhost"}, extraHosts...),
	}

	certDER, err = x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("httpapi: creating certificate: %w", err)
	}

	keyDER, err = x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("httpapi: marshaling key: %w", err)
	}

	return certDER, keyDER, nil
}
