package validator

// This file contains RRSIG signature verification per RFC 4035 §5.3.
// Verification runs over the canonical wire form of the RRset (lowercase
// owner names, canonical ordering), which miekg/dns produces internally.

import (
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const dnskeyProtocolValue = 3 // RFC 4034 §2.1.2: protocol field MUST be 3

var (
	// errUnsupportedAlgorithm marks an algorithm number outside the closed
	// dispatch set; it classifies as indeterminate, never as a crash.
	errUnsupportedAlgorithm = errors.New("unsupported DNSSEC algorithm")

	errNoMatchingKey        = errors.New("no DNSKEY matches key tag and algorithm of the RRSIG")
	errSignatureOutOfWindow = errors.New("signature outside its validity window")
)

// supportedAlgorithms is the closed set of verification primitives,
// keyed by IANA algorithm number (RFC 8624).
// nolint:gochecknoglobals
var supportedAlgorithms = map[uint8]string{
	dns.RSASHA1:          "RSA/SHA-1",
	dns.RSASHA1NSEC3SHA1: "RSA/SHA-1 (NSEC3)",
	dns.RSASHA256:        "RSA/SHA-256",
	dns.RSASHA512:        "RSA/SHA-512",
	dns.ECDSAP256SHA256:  "ECDSA P-256/SHA-256",
	dns.ECDSAP384SHA384:  "ECDSA P-384/SHA-384",
	dns.ED25519:          "Ed25519",
	dns.ED448:            "Ed448",
}

// verifyRRSIG verifies one RRSIG over an RRset against the candidate keys.
// It returns the key that verified the signature.
func (v *Validator) verifyRRSIG(
	logger *logrus.Entry, set *rrset, sig *dns.RRSIG, keys []*dns.DNSKEY, now time.Time,
) (*dns.DNSKEY, error) {
	if _, ok := supportedAlgorithms[sig.Algorithm]; !ok {
		return nil, fmt.Errorf("%w: %d", errUnsupportedAlgorithm, sig.Algorithm)
	}

	key := findMatchingDNSKEY(keys, sig.KeyTag, sig.Algorithm)
	if key == nil {
		return nil, fmt.Errorf("%w (keytag=%d, algorithm=%d)", errNoMatchingKey, sig.KeyTag, sig.Algorithm)
	}

	if !v.inValidityWindow(sig, now) {
		return nil, fmt.Errorf("%w (inception=%d, expiration=%d, now=%d, tolerance=%ds)",
			errSignatureOutOfWindow, sig.Inception, sig.Expiration, now.Unix(), v.cfg.ClockSkewToleranceSec)
	}

	if err := sig.Verify(key, set.rrs); err != nil {
		logger.Debugf("signature verification failed for %s (keytag=%d, algorithm=%s): %v",
			set.name, sig.KeyTag, supportedAlgorithms[sig.Algorithm], err)

		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	logger.Debugf("verified %s RRset of %s with keytag=%d, algorithm=%s",
		dns.TypeToString[sig.TypeCovered], set.name, sig.KeyTag, supportedAlgorithms[sig.Algorithm])

	return key, nil
}

// inValidityWindow checks the RRSIG inception/expiration against now.
// The 32-bit timestamps wrap at 2^32 seconds, so the comparison uses
// serial-number arithmetic (RFC 4034 §3.1.5) via ValidityPeriod rather than
// naive integer comparison. Clock skew tolerance widens the window on both
// sides, matching Unbound/BIND behavior.
func (v *Validator) inValidityWindow(sig *dns.RRSIG, now time.Time) bool {
	if sig.ValidityPeriod(now) {
		return true
	}

	tolerance := time.Duration(v.cfg.ClockSkewToleranceSec) * time.Second

	return sig.ValidityPeriod(now.Add(-tolerance)) || sig.ValidityPeriod(now.Add(tolerance))
}

// findMatchingDNSKEY finds the key matching the RRSIG's key tag and
// algorithm. Keys with a protocol other than 3 are never candidates.
func findMatchingDNSKEY(keys []*dns.DNSKEY, keyTag uint16, algorithm uint8) *dns.DNSKEY {
	for _, key := range keys {
		if key.Protocol != dnskeyProtocolValue {
			continue
		}

		if key.KeyTag() == keyTag && key.Algorithm == algorithm {
			return key
		}
	}

	return nil
}

// selectSigForKey returns the RRSIG made by the given key, matching key tag,
// algorithm and signer name. For DNSKEY RRsets the signer must equal the
// owner (RFC 4035 §2.2).
func selectSigForKey(sigs []*dns.RRSIG, signer string, key *dns.DNSKEY) *dns.RRSIG {
	for _, sig := range sigs {
		if sig.KeyTag == key.KeyTag() &&
			sig.Algorithm == key.Algorithm &&
			dns.CanonicalName(sig.SignerName) == signer {
			return sig
		}
	}

	return nil
}
