package model

import (
	"github.com/miekg/dns"
)

// DNSKEYRecord is the report view of a DNSKEY resource record.
type DNSKEYRecord struct {
	Zone      string `json:"zone"`
	Flags     uint16 `json:"flags"`
	Protocol  uint8  `json:"protocol"`
	Algorithm uint8  `json:"algorithm"`
	KeyTag    uint16 `json:"key_tag"`
	PublicKey string `json:"public_key"`
}

// DSRecord is the report view of a DS resource record, published in the
// parent zone of the owner.
type DSRecord struct {
	Zone       string `json:"zone"`
	KeyTag     uint16 `json:"key_tag"`
	Algorithm  uint8  `json:"algorithm"`
	DigestType uint8  `json:"digest_type"`
	Digest     string `json:"digest"`
}

// RRSIGRecord is the report view of an RRSIG resource record.
type RRSIGRecord struct {
	Zone        string `json:"zone"`
	TypeCovered string `json:"type_covered"`
	Algorithm   uint8  `json:"algorithm"`
	Labels      uint8  `json:"labels"`
	OriginalTTL uint32 `json:"original_ttl"`
	Expiration  uint32 `json:"expiration"`
	Inception   uint32 `json:"inception"`
	KeyTag      uint16 `json:"key_tag"`
	SignerName  string `json:"signer_name"`
}

// RecordSet collects the raw records seen during a walk.
type RecordSet struct {
	DNSKEY []DNSKEYRecord `json:"dnskey"`
	DS     []DSRecord     `json:"ds"`
	RRSIG  []RRSIGRecord  `json:"rrsig"`
}

// Normalized returns a copy with non-nil slices so the JSON shape stays
// stable across outcomes.
func (r RecordSet) Normalized() RecordSet {
	if r.DNSKEY == nil {
		r.DNSKEY = []DNSKEYRecord{}
	}

	if r.DS == nil {
		r.DS = []DSRecord{}
	}

	if r.RRSIG == nil {
		r.RRSIG = []RRSIGRecord{}
	}

	return r
}

// NewDNSKEYRecord converts a wire DNSKEY into its report view.
func NewDNSKEYRecord(zone string, key *dns.DNSKEY) DNSKEYRecord {
	return DNSKEYRecord{
		Zone:      zone,
		Flags:     key.Flags,
		Protocol:  key.Protocol,
		Algorithm: key.Algorithm,
		KeyTag:    key.KeyTag(),
		PublicKey: key.PublicKey,
	}
}

// NewDSRecord converts a wire DS into its report view.
func NewDSRecord(zone string, ds *dns.DS) DSRecord {
	return DSRecord{
		Zone:       zone,
		KeyTag:     ds.KeyTag,
		Algorithm:  ds.Algorithm,
		DigestType: ds.DigestType,
		Digest:     ds.Digest,
	}
}

// NewRRSIGRecord converts a wire RRSIG into its report view.
func NewRRSIGRecord(zone string, sig *dns.RRSIG) RRSIGRecord {
	return RRSIGRecord{
		Zone:        zone,
		TypeCovered: dns.TypeToString[sig.TypeCovered],
		Algorithm:   sig.Algorithm,
		Labels:      sig.Labels,
		OriginalTTL: sig.OrigTtl,
		Expiration:  sig.Expiration,
		Inception:   sig.Inception,
		KeyTag:      sig.KeyTag,
		SignerName:  sig.SignerName,
	}
}
