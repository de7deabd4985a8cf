package validator

// This file contains the TLSA/DANE certificate binding check per RFC 6698:
// fetch the TLSA RRset for the service tuple, verify that the RRset itself is
// DNSSEC-signed, and match the live TLS certificate chain against it.

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/zonecheck/zonecheck/config"
	"github.com/zonecheck/zonecheck/model"
)

// CertFetcher obtains the peer certificate chain of a TLS endpoint.
// Implementations must be safe for concurrent use.
type CertFetcher interface {
	FetchCertificates(ctx context.Context, host string, port uint16) ([]*x509.Certificate, error)
}

// RFC 6698 §2.1 field value names, for log and report messages.
var (
	tlsaUsageNames = map[uint8]string{
		0: "PKIX-TA",
		1: "PKIX-EE",
		2: "DANE-TA",
		3: "DANE-EE",
	}
	tlsaSelectorNames = map[uint8]string{
		0: "Cert",
		1: "SPKI",
	}
	tlsaMatchingNames = map[uint8]string{
		0: "Full",
		1: "SHA2-256",
		2: "SHA2-512",
	}
)

// validateDANE performs the TLSA/DANE check for the configured service tuple.
// DANE is only meaningful on top of a valid chain of trust: without DNSSEC the
// TLSA records carry no authentication value (RFC 6698 §4), so a broken chain
// or an unsigned TLSA RRset short-circuits to dnssec-required before any TLS
// handshake happens.
func (v *Validator) validateDANE(
	ctx context.Context, logger *logrus.Entry, domain string, walk *walkResult,
) *model.TLSASummary {
	name := fmt.Sprintf("_%d._%s.%s", v.cfg.TLSA.Port, v.cfg.TLSA.Protocol, domain)
	logger = logger.WithField("tlsa", name)

	set, err := v.fetchRRset(ctx, logger, name, dns.TypeTLSA)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.IsNotFound() {
			logger.Debugf("no TLSA records published")

			return summarize(model.DaneStatusNoTLSA, 0,
				fmt.Sprintf("no TLSA records published for %s", name))
		}

		walk.addError(err)

		return summarize(model.DaneStatusError, 0, err.Error())
	}

	records := typedRecords[*dns.TLSA](set)
	logger.Debugf("found %d TLSA record(s)", len(records))

	if chainStatus(walk.links) != model.StatusValid {
		return summarize(model.DaneStatusDNSSECRequired, len(records),
			"chain of trust is not valid, TLSA records cannot be authenticated")
	}

	if err := v.verifyTLSASignature(logger, walk, set); err != nil {
		return summarize(model.DaneStatusDNSSECRequired, len(records),
			fmt.Sprintf("TLSA RRset is not DNSSEC-valid: %v", err))
	}

	host := strings.TrimSuffix(domain, ".")

	certs, err := v.certs.FetchCertificates(ctx, host, v.cfg.TLSA.Port)
	if err != nil {
		walk.addError(fmt.Errorf("certificate fetch for %s:%d failed: %w", host, v.cfg.TLSA.Port, err))

		return summarize(model.DaneStatusError, len(records),
			fmt.Sprintf("could not obtain certificate from %s:%d: %v", host, v.cfg.TLSA.Port, err))
	}

	if len(certs) == 0 {
		return summarize(model.DaneStatusError, len(records),
			fmt.Sprintf("%s:%d presented no certificate", host, v.cfg.TLSA.Port))
	}

	return matchTLSA(logger, records, certs)
}

// verifyTLSASignature verifies the RRSIG over the TLSA RRset against the
// DNSKEY sets the chain walk already authenticated. A signature whose
// SignerName points outside the validated chain is rejected outright:
// checking it against freshly fetched, unauthenticated keys would let any
// response forger mint its own signer.
func (v *Validator) verifyTLSASignature(logger *logrus.Entry, walk *walkResult, set *rrset) error {
	if len(set.sigs) == 0 {
		return errors.New("no RRSIG covers the TLSA RRset")
	}

	var lastErr error

	for _, sig := range set.sigs {
		signer := dns.CanonicalName(sig.SignerName)

		keys, ok := walk.trustedKeys[signer]
		if !ok {
			lastErr = fmt.Errorf("signer zone %s is not part of the validated chain", signer)

			continue
		}

		if _, err := v.verifyRRSIG(logger, set, sig, keys, time.Now()); err != nil {
			lastErr = err

			continue
		}

		return nil
	}

	return lastErr
}

// matchTLSA matches each TLSA record against the presented certificate chain.
// Per RFC 6698 §2.1.1, end-entity usages (PKIX-EE, DANE-EE) constrain the leaf
// certificate; trust-anchor usages (PKIX-TA, DANE-TA) constrain an issuer in
// the rest of the chain.
func matchTLSA(logger *logrus.Entry, records []*dns.TLSA, certs []*x509.Certificate) *model.TLSASummary {
	matched := 0

	for _, tlsa := range records {
		if tlsaRecordMatches(tlsa, certs) {
			matched++

			logger.Debugf("TLSA %s/%s/%s matched",
				tlsaUsageNames[tlsa.Usage], tlsaSelectorNames[tlsa.Selector], tlsaMatchingNames[tlsa.MatchingType])
		}
	}

	leaf := certs[0]
	certInfo := fmt.Sprintf("certificate subject=%q issuer=%q notAfter=%s",
		leaf.Subject, leaf.Issuer, leaf.NotAfter.Format(time.RFC3339))

	if matched == 0 {
		return summarize(model.DaneStatusInvalid, len(records),
			fmt.Sprintf("none of %d TLSA record(s) match the presented %s", len(records), certInfo))
	}

	return summarize(model.DaneStatusValid, len(records),
		fmt.Sprintf("%d of %d TLSA record(s) match the presented %s", matched, len(records), certInfo))
}

func tlsaRecordMatches(tlsa *dns.TLSA, certs []*x509.Certificate) bool {
	candidates := certs[:1]
	if tlsa.Usage == 0 || tlsa.Usage == 2 {
		candidates = certs[1:]

		// RFC 7671 §5.2.2: a self-issued trust anchor may be presented as
		// the only certificate of the chain
		if len(candidates) == 0 {
			candidates = certs[:1]
		}
	}

	for _, cert := range candidates {
		expected, err := dns.CertificateToDANE(tlsa.Selector, tlsa.MatchingType, cert)
		if err != nil {
			continue
		}

		if strings.EqualFold(expected, tlsa.Certificate) {
			return true
		}
	}

	return false
}

func summarize(status model.DaneStatus, recordsFound int, message string) *model.TLSASummary {
	return &model.TLSASummary{
		Status:       status.ChainStatus(),
		RecordsFound: recordsFound,
		DaneStatus:   status,
		Message:      message,
	}
}

// tlsCertFetcher obtains the peer chain with a live TLS handshake. Certificate
// verification is disabled on purpose: DANE matching replaces the PKIX check,
// and an expired or self-signed certificate must still be matchable against
// DANE-EE records.
type tlsCertFetcher struct {
	timeout config.Duration
}

// NewTLSCertFetcher creates the default CertFetcher performing a TLS handshake
// with the given timeout.
func NewTLSCertFetcher(timeout config.Duration) CertFetcher {
	return &tlsCertFetcher{timeout: timeout}
}

func (f *tlsCertFetcher) FetchCertificates(
	_ context.Context, host string, port uint16,
) ([]*x509.Certificate, error) {
	// the handshake budget is independent of the DNS request deadline, so
	// the context is not derived from the caller's
	ctx := context.Background()

	if f.timeout.IsAboveZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout.ToDuration())

		defer cancel()
	}

	dialer := tls.Dialer{
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("TLS handshake with %s:%d failed: %w", host, port, err)
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, fmt.Errorf("unexpected connection type %T", conn)
	}

	return tlsConn.ConnectionState().PeerCertificates, nil
}
