package helpertest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/miekg/dns"
)

// GenerateCertificate creates a self-signed certificate for the given common
// name, valid from one hour ago until tomorrow.
func GenerateCertificate(commonName string) *x509.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("can't generate certificate key: %v", err))
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(fmt.Sprintf("can't create certificate: %v", err))
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(fmt.Sprintf("can't parse certificate: %v", err))
	}

	return cert
}

// GenerateServerCertificate creates a self-signed certificate for the given
// common name together with its private key, usable as a TLS server identity
// on the loopback interface.
func GenerateServerCertificate(commonName string) (tls.Certificate, *x509.Certificate) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("can't generate certificate key: %v", err))
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(fmt.Sprintf("can't create certificate: %v", err))
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(fmt.Sprintf("can't parse certificate: %v", err))
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, cert
}

// TLSARecord builds a TLSA record matching the given certificate.
func TLSARecord(name string, usage, selector, matchingType uint8, cert *x509.Certificate) *dns.TLSA {
	data, err := dns.CertificateToDANE(selector, matchingType, cert)
	if err != nil {
		panic(fmt.Sprintf("can't compute certificate association: %v", err))
	}

	return &dns.TLSA{
		Hdr: dns.RR_Header{
			Name: dns.Fqdn(name), Rrtype: dns.TypeTLSA, Class: dns.ClassINET, Ttl: 3600,
		},
		Usage:        usage,
		Selector:     selector,
		MatchingType: matchingType,
		Certificate:  data,
	}
}

// StaticCertFetcher serves a fixed certificate chain or error instead of
// performing a TLS handshake.
type StaticCertFetcher struct {
	Certs []*x509.Certificate
	Err   error
}

func (f *StaticCertFetcher) FetchCertificates(_ context.Context, _ string, _ uint16) ([]*x509.Certificate, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	return f.Certs, nil
}
