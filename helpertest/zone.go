package helpertest

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// TestZone is a miniature signed zone: one ECDSA P-256 key with the SEP flag
// set, able to sign arbitrary RRsets and to emit its own DS record. Keys are
// generated fresh per zone, so fixtures never depend on stored key material.
type TestZone struct {
	Name string
	KSK  *dns.DNSKEY

	signer crypto.Signer
}

func NewTestZone(name string) *TestZone {
	name = dns.Fqdn(name)

	key := &dns.DNSKEY{
		Hdr: dns.RR_Header{
			Name: name, Rrtype: dns.TypeDNSKEY, Class: dns.ClassINET, Ttl: 3600,
		},
		Flags:     dns.ZONE | dns.SEP,
		Protocol:  3,
		Algorithm: dns.ECDSAP256SHA256,
	}

	priv, err := key.Generate(256)
	if err != nil {
		panic(fmt.Sprintf("can't generate key for %s: %v", name, err))
	}

	signer, ok := priv.(crypto.Signer)
	if !ok {
		panic(fmt.Sprintf("generated key for %s is not a crypto.Signer", name))
	}

	return &TestZone{Name: name, KSK: key, signer: signer}
}

// KeyRRset returns the zone's DNSKEY RRset.
func (z *TestZone) KeyRRset() []dns.RR {
	return []dns.RR{z.KSK}
}

// Sign produces an RRSIG over the given RRset, valid from one hour ago until
// tomorrow.
func (z *TestZone) Sign(rrset []dns.RR) *dns.RRSIG {
	owner := rrset[0].Header().Name
	now := time.Now()

	sig := &dns.RRSIG{
		Hdr: dns.RR_Header{
			Name: owner, Rrtype: dns.TypeRRSIG, Class: dns.ClassINET, Ttl: 3600,
		},
		TypeCovered: rrset[0].Header().Rrtype,
		Algorithm:   z.KSK.Algorithm,
		Labels:      uint8(dns.CountLabel(owner)),
		OrigTtl:     3600,
		Expiration:  uint32(now.Add(24 * time.Hour).Unix()),
		Inception:   uint32(now.Add(-time.Hour).Unix()),
		KeyTag:      z.KSK.KeyTag(),
		SignerName:  z.Name,
	}

	if err := sig.Sign(z.signer, rrset); err != nil {
		panic(fmt.Sprintf("can't sign %s RRset of %s: %v", dns.TypeToString[sig.TypeCovered], owner, err))
	}

	return sig
}

// SignedKeys returns the zone's DNSKEY RRset together with its signature,
// ready to script into a FakeDNS answer.
func (z *TestZone) SignedKeys() []dns.RR {
	keys := z.KeyRRset()

	return append(keys, z.Sign(keys))
}

// DS returns the SHA-256 DS record binding this zone into its parent.
func (z *TestZone) DS() *dns.DS {
	return z.KSK.ToDS(dns.SHA256)
}

// CorruptSignature flips a bit in the signature so that it no longer verifies
// while staying syntactically valid.
func CorruptSignature(sig *dns.RRSIG) {
	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		panic(fmt.Sprintf("can't decode signature: %v", err))
	}

	raw[0] ^= 0xFF
	sig.Signature = base64.StdEncoding.EncodeToString(raw)
}
