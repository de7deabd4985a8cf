package validator

// This file contains the DS/DNSKEY binding check per RFC 4034 §5.
// A DS published in the parent zone binds to a child DNSKEY only when key
// tag, algorithm AND the recomputed digest all match; a key tag collision
// with a digest mismatch is a failed match, never a partial success.

import (
	"strings"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const keyFlagRevoke = 0x0080 // RFC 5011 §7: REVOKE flag (bit 8)

// usableZoneKey reports whether a DNSKEY may take part in validation:
// ZONE flag set (RFC 4034 §2.1.1), not revoked (RFC 5011 §7), protocol 3.
func usableZoneKey(key *dns.DNSKEY) bool {
	if key.Flags&dns.ZONE == 0 {
		return false
	}

	if key.Flags&keyFlagRevoke != 0 {
		return false
	}

	return key.Protocol == dnskeyProtocolValue
}

// dsMatchesKey recomputes the DS digest over the canonical wire form of
// owner name and DNSKEY RDATA and compares it byte-for-byte.
func dsMatchesKey(ds *dns.DS, key *dns.DNSKEY) bool {
	if key.KeyTag() != ds.KeyTag || key.Algorithm != ds.Algorithm {
		return false
	}

	// SHA-1/SHA-256/SHA-384 selected by the DS digest type; an unsupported
	// digest type yields nil and therefore no match
	computed := key.ToDS(ds.DigestType)
	if computed == nil {
		return false
	}

	return strings.EqualFold(computed.Digest, ds.Digest)
}

// findBoundKey returns the first usable child DNSKEY that one of the parent
// DS records binds to. nil means the cryptographic binding is broken.
func findBoundKey(logger *logrus.Entry, keys []*dns.DNSKEY, dsRecords []*dns.DS) *dns.DNSKEY {
	for _, key := range keys {
		if !usableZoneKey(key) {
			continue
		}

		for _, ds := range dsRecords {
			if dsMatchesKey(ds, key) {
				logger.Debugf("DS binds DNSKEY keytag=%d, algorithm=%d, digest_type=%d",
					ds.KeyTag, ds.Algorithm, ds.DigestType)

				return key
			}
		}
	}

	return nil
}
