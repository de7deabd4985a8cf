package validator

// This file contains the chain of trust walk per RFC 4035: zone-by-zone
// traversal from the root to the target domain, checking the DS/DNSKEY
// binding and the DNSKEY RRSIG at every zone cut.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/zonecheck/zonecheck/model"
)

// walkResult accumulates the ordered chain links, the raw records seen along
// the way and the run-level errors.
type walkResult struct {
	links   []model.ChainLink
	records model.RecordSet
	errs    *multierror.Error

	// DNSKEY sets whose RRSIG verified during the walk, keyed by zone.
	// Only these keys may authenticate further RRsets in the same run.
	trustedKeys map[string][]*dns.DNSKEY
}

func (w *walkResult) addError(err error) {
	w.errs = multierror.Append(w.errs, err)
}

// zoneCuts decomposes a canonical FQDN into its ordered zone cuts,
// root first: "bondit.dk." -> [".", "dk.", "bondit.dk."].
func zoneCuts(domain string) []string {
	labels := dns.SplitDomainName(dns.Fqdn(domain))

	cuts := make([]string, 0, len(labels)+1)
	cuts = append(cuts, ".")

	current := ""
	for i := len(labels) - 1; i >= 0; i-- {
		current = labels[i] + "." + current
		cuts = append(cuts, current)
	}

	return cuts
}

// walkChain walks the chain of trust from the root to the target domain.
// The walk is inherently sequential: each zone's trust depends on the
// previous zone's verified DNSKEY. It stops at the first link that is not
// valid; the partial chain is always kept.
func (v *Validator) walkChain(ctx context.Context, logger *logrus.Entry, domain string) *walkResult {
	walk := &walkResult{trustedKeys: make(map[string][]*dns.DNSKEY)}

	for _, zone := range zoneCuts(domain) {
		link := v.validateZone(ctx, logger, walk, zone)
		walk.links = append(walk.links, link)

		if link.Status != model.StatusValid {
			if link.Error != "" {
				walk.addError(fmt.Errorf("zone %s: %s", zone, link.Error))
			}

			logger.Debugf("chain stops at %s with status %s", zone, link.Status)

			break
		}
	}

	return walk
}

// validateZone validates a single zone cut and returns its chain link.
func (v *Validator) validateZone(
	ctx context.Context, logger *logrus.Entry, walk *walkResult, zone string,
) model.ChainLink {
	logger.Debugf("validating zone %s", zone)

	keySet, err := v.fetchRRset(ctx, logger, zone, dns.TypeDNSKEY)
	if err != nil {
		return v.classifyMissingDNSKEY(ctx, logger, zone, err)
	}

	keys := typedRecords[*dns.DNSKEY](keySet)
	walk.captureDNSKEYs(zone, keySet, keys)

	var signingKey *dns.DNSKEY

	if v.anchors.HasTrustAnchor(zone) {
		// trust anchor zone (the root by default): the published DNSKEY set
		// must contain a key equal to a configured anchor
		signingKey = v.anchors.Match(zone, keys)
		if signingKey == nil {
			return model.ChainLink{
				Zone: zone, Status: model.StatusBogus,
				Error: "published DNSKEY set does not match any configured trust anchor",
			}
		}
	} else {
		dsSet, dsErr := v.fetchRRset(ctx, logger, zone, dns.TypeDS)
		if dsErr != nil {
			return classifyMissingDS(zone, dsErr)
		}

		dsRecords := typedRecords[*dns.DS](dsSet)
		walk.captureDS(zone, dsSet, dsRecords)

		// DS present: the delegation claims to be secure, so a failed
		// binding is adversarial, not benign
		signingKey = findBoundKey(logger, keys, dsRecords)
		if signingKey == nil {
			return model.ChainLink{
				Zone: zone, Status: model.StatusBogus,
				Error: "no DNSKEY matches the DS records published in the parent zone",
			}
		}
	}

	sig := selectSigForKey(keySet.sigs, zone, signingKey)
	if sig == nil {
		return model.ChainLink{
			Zone: zone, Status: model.StatusBogus,
			Error: fmt.Sprintf("no RRSIG over the DNSKEY RRset made with key tag %d", signingKey.KeyTag()),
		}
	}

	if _, verifyErr := v.verifyRRSIG(logger, keySet, sig, []*dns.DNSKEY{signingKey}, time.Now()); verifyErr != nil {
		status := model.StatusBogus
		if errors.Is(verifyErr, errUnsupportedAlgorithm) {
			status = model.StatusIndeterminate
		}

		return model.ChainLink{Zone: zone, Status: status, Error: verifyErr.Error()}
	}

	// the verified RRSIG authenticates the whole DNSKEY RRset, ZSKs included
	walk.trustedKeys[zone] = keys

	return model.ChainLink{
		Zone:      zone,
		Status:    model.StatusValid,
		Algorithm: signingKey.Algorithm,
		KeyTag:    signingKey.KeyTag(),
	}
}

// classifyMissingDNSKEY maps a failed DNSKEY fetch to a link status.
// A missing DNSKEY is benign only if the parent published no DS; a DS with
// no DNSKEY underneath is a chain break.
func (v *Validator) classifyMissingDNSKEY(
	ctx context.Context, logger *logrus.Entry, zone string, err error,
) model.ChainLink {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || !fetchErr.IsNotFound() {
		return model.ChainLink{Zone: zone, Status: model.StatusIndeterminate, Error: err.Error()}
	}

	if zone == "." {
		// the root zone always has keys; an empty answer is a protocol fault
		return model.ChainLink{
			Zone: zone, Status: model.StatusIndeterminate,
			Error: "root zone returned no DNSKEY records",
		}
	}

	_, dsErr := v.fetchRRset(ctx, logger, zone, dns.TypeDS)
	if dsErr == nil {
		return model.ChainLink{
			Zone: zone, Status: model.StatusBogus,
			Error: "DS records published in the parent zone but no DNSKEY in the child",
		}
	}

	var dsFetchErr *FetchError
	if errors.As(dsErr, &dsFetchErr) && dsFetchErr.IsNotFound() {
		return model.ChainLink{Zone: zone, Status: model.StatusInsecure}
	}

	return model.ChainLink{Zone: zone, Status: model.StatusIndeterminate, Error: dsErr.Error()}
}

// classifyMissingDS maps a failed DS fetch to a link status. Absence of DS
// at a delegation is the benign "unsigned below this point" case.
func classifyMissingDS(zone string, err error) model.ChainLink {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.IsNotFound() {
		return model.ChainLink{Zone: zone, Status: model.StatusInsecure}
	}

	return model.ChainLink{Zone: zone, Status: model.StatusIndeterminate, Error: err.Error()}
}

func (w *walkResult) captureDNSKEYs(zone string, set *rrset, keys []*dns.DNSKEY) {
	for _, key := range keys {
		w.records.DNSKEY = append(w.records.DNSKEY, model.NewDNSKEYRecord(zone, key))
	}

	for _, sig := range set.sigs {
		w.records.RRSIG = append(w.records.RRSIG, model.NewRRSIGRecord(zone, sig))
	}
}

func (w *walkResult) captureDS(zone string, set *rrset, dsRecords []*dns.DS) {
	for _, ds := range dsRecords {
		w.records.DS = append(w.records.DS, model.NewDSRecord(zone, ds))
	}

	for _, sig := range set.sigs {
		w.records.RRSIG = append(w.records.RRSIG, model.NewRRSIGRecord(zone, sig))
	}
}
