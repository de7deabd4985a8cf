package validator

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// Root KSK trust anchors from IANA (https://data.iana.org/root-anchors/).
// KSK-2017 (key tag 20326) is active since 2017, KSK-2024 (key tag 38696)
// since July 2024; both are carried to survive anchor rollover.
// nolint:gochecknoglobals
var defaultRootAnchors = []string{
	". 172800 IN DNSKEY 257 3 8 " +
		"AwEAAaz/tAm8yTn4Mfeh5eyI96WSVexTBAvkMgJzkKTOiW1vkIbzxeF3+/4RgWOq7HrxRixHlFlExOLAJr5emLvN7SWXgnLh4+B5xQlNVz8Og8k" +
		"vArMtNROxVQuCaSnIDdD5LKyWbRd2n9WGe2R8PzgCmr3EgVLrjyBxWezF0jLHwVN8efS3rCj/EWgvIWgb9tarpVUDK/b58Da+sqqls3eNbuv7pr" +
		"+eoZG+SrDK6nWeL3c6H5Apxz7LjVc1uTIdsIXxuOLYA4/ilBmSVIzuDWfdRUfhHdY6+cn8HFRm+2hM8AnXGXws9555KrUB5qihylGa8subX2Nn6" +
		"UwNR1AkUTV74bU=",
	". 172800 IN DNSKEY 257 3 8 " +
		"AwEAAa96jeuknZlaeSrvyAJj6ZHv28hhOKkx3rLGXVaC6rXTsDc449/cidltpkyGwCJNnOAlFNKF2jBosZBU5eeHspaQWOmOElZsjICMQMC3aeH" +
		"bGiShvZsx4wMYSjH8e7Vrhbu6irwCzVBApESjbUdpWWmEnhathWu1jo+siFUiRAAxm9qyJNg/wOZqqzL/dL/q8PkcRU5oUKEpUge71M3ej2/7CP" +
		"qpdVwuMoTvoB+ZOT4YeGyxMvHmbrxlFzGOHOijtzN+u1TQNatX2XBuzZNQ1K+s2CXkPIZo7s6JgZyvaBevYtxPvYLw4z9mR7K2vaF18UYH9Z9GN" +
		"UUeayffKC73PYc=",
}

// TrustAnchorStore holds the configured DNSSEC trust anchors, keyed by zone.
// It is built once at startup and never mutated afterwards; rollover is
// handled by carrying a set of currently valid anchors per zone.
type TrustAnchorStore struct {
	anchors map[string][]*dns.DNSKEY
}

// NewTrustAnchorStore creates a trust anchor store from DNSKEY records in
// zone file format. An empty list selects the IANA root KSKs. Every anchor
// must be a KSK (SEP flag set).
func NewTrustAnchorStore(customAnchors []string) (*TrustAnchorStore, error) {
	anchors := customAnchors
	if len(anchors) == 0 {
		anchors = defaultRootAnchors
	}

	store := &TrustAnchorStore{
		anchors: make(map[string][]*dns.DNSKEY),
	}

	for _, anchor := range anchors {
		if err := store.add(anchor); err != nil {
			return nil, fmt.Errorf("failed to load trust anchor: %w", err)
		}
	}

	return store, nil
}

func (s *TrustAnchorStore) add(anchorStr string) error {
	rr, err := dns.NewRR(anchorStr)
	if err != nil {
		return fmt.Errorf("failed to parse trust anchor: %w", err)
	}

	dnskey, ok := rr.(*dns.DNSKEY)
	if !ok {
		return errors.New("trust anchor is not a DNSKEY record")
	}

	if dnskey.Flags&dns.SEP == 0 {
		return errors.New("trust anchor is not a KSK (SEP flag not set)")
	}

	zone := dns.CanonicalName(dnskey.Header().Name)
	s.anchors[zone] = append(s.anchors[zone], dnskey)

	return nil
}

// HasTrustAnchor returns true if an anchor is configured for the zone.
// Anchors below the root act as islands of trust.
func (s *TrustAnchorStore) HasTrustAnchor(zone string) bool {
	return len(s.anchors[dns.CanonicalName(zone)]) > 0
}

// Zones returns all zones with configured anchors.
func (s *TrustAnchorStore) Zones() []string {
	zones := make([]string, 0, len(s.anchors))
	for zone := range s.anchors {
		zones = append(zones, zone)
	}

	return zones
}

// Match returns the first usable DNSKEY from the zone's published set whose
// content equals a configured anchor for that zone, nil if none matches.
func (s *TrustAnchorStore) Match(zone string, keys []*dns.DNSKEY) *dns.DNSKEY {
	anchors := s.anchors[dns.CanonicalName(zone)]

	for _, key := range keys {
		if !usableZoneKey(key) {
			continue
		}

		for _, anchor := range anchors {
			if key.PublicKey == anchor.PublicKey &&
				key.Algorithm == anchor.Algorithm &&
				key.Flags == anchor.Flags {
				return key
			}
		}
	}

	return nil
}
