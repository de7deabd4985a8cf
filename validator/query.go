package validator

// This file contains the record fetcher: upstream queries with the DO bit
// set, typed failure classification, and a bounded retry budget that applies
// to timeouts only.

import (
	"context"
	"errors"
	"fmt"
	"net"

	retry "github.com/avast/retry-go/v4"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// FailureKind classifies a failed record fetch.
type FailureKind int

const (
	// FailureTimeout the upstream did not answer in time (retryable)
	FailureTimeout FailureKind = iota
	// FailureServfail the upstream answered with a non-success RCODE
	FailureServfail
	// FailureNXDomain the queried name does not exist
	FailureNXDomain
	// FailureNoData the name exists but has no records of the queried type
	FailureNoData
	// FailureMalformed the response could not be decoded
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureServfail:
		return "servfail"
	case FailureNXDomain:
		return "nxdomain"
	case FailureNoData:
		return "nodata"
	default:
		return "malformed"
	}
}

// FetchError is the typed failure of a single record fetch.
type FetchError struct {
	Kind  FailureKind
	Name  string
	Qtype uint16
	cause error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s query for %s failed: %s", dns.TypeToString[e.Qtype], e.Name, e.Kind)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}

	return msg
}

func (e *FetchError) Unwrap() error {
	return e.cause
}

// IsNotFound returns true for NXDOMAIN and NODATA outcomes, whose meaning
// depends on the caller's context (expected absence vs chain break).
func (e *FetchError) IsNotFound() bool {
	return e.Kind == FailureNXDomain || e.Kind == FailureNoData
}

// rrset is a decoded RRset together with the RRSIGs covering it.
type rrset struct {
	name string
	rrs  []dns.RR
	sigs []*dns.RRSIG
}

// fetchRRset queries name/qtype with DNSSEC enabled and returns the decoded
// RRset or a typed FetchError. Only timeouts are retried; all other failures
// are terminal for the query. No caching, no shared state.
func (v *Validator) fetchRRset(
	ctx context.Context, logger *logrus.Entry, name string, qtype uint16,
) (*rrset, error) {
	name = dns.Fqdn(name)

	msg := new(dns.Msg)
	msg.SetQuestion(name, qtype)
	msg.SetEdns0(ednsUDPSize, true) // DO bit for DNSSEC

	var response *dns.Msg

	err := retry.Do(
		func() error {
			res, exErr := v.transport.Exchange(ctx, msg)
			if exErr != nil {
				return classifyTransportError(name, qtype, exErr)
			}

			response = res

			return nil
		},
		retry.Attempts(v.cfg.QueryAttempts),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(v.cfg.QueryRetryDelay.ToDuration()),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var fetchErr *FetchError

			return errors.As(err, &fetchErr) && fetchErr.Kind == FailureTimeout
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.WithField("attempt", fmt.Sprintf("%d/%d", n+1, v.cfg.QueryAttempts)).
				Debugf("%s query for %s timed out, retrying", dns.TypeToString[qtype], name)
		}),
	)
	if err != nil {
		return nil, err
	}

	switch response.Rcode {
	case dns.RcodeSuccess:
		// fallthrough to RRset extraction
	case dns.RcodeNameError:
		return nil, &FetchError{Kind: FailureNXDomain, Name: name, Qtype: qtype}
	default:
		return nil, &FetchError{
			Kind: FailureServfail, Name: name, Qtype: qtype,
			cause: fmt.Errorf("rcode %s", dns.RcodeToString[response.Rcode]),
		}
	}

	set := extractRRset(response, name, qtype)
	if len(set.rrs) == 0 {
		return nil, &FetchError{Kind: FailureNoData, Name: name, Qtype: qtype}
	}

	return set, nil
}

// classifyTransportError maps transport failures to the fetch taxonomy:
// net timeouts and context deadlines are retryable, everything else counts
// as a malformed/protocol failure.
func classifyTransportError(name string, qtype uint16, err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: FailureTimeout, Name: name, Qtype: qtype, cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FailureTimeout, Name: name, Qtype: qtype, cause: err}
	}

	return &FetchError{Kind: FailureMalformed, Name: name, Qtype: qtype, cause: err}
}

// extractRRset collects records of the queried type and their covering
// RRSIGs from the answer and authority sections. DS responses arrive in the
// authority section on some delegations.
func extractRRset(response *dns.Msg, name string, qtype uint16) *rrset {
	set := &rrset{name: name}

	for _, section := range [][]dns.RR{response.Answer, response.Ns} {
		for _, rr := range section {
			if sig, ok := rr.(*dns.RRSIG); ok {
				if sig.TypeCovered == qtype && dns.CanonicalName(sig.Header().Name) == name {
					set.sigs = append(set.sigs, sig)
				}

				continue
			}

			if rr.Header().Rrtype == qtype && dns.CanonicalName(rr.Header().Name) == name {
				set.rrs = append(set.rrs, rr)
			}
		}
	}

	return set
}

// typedRecords extracts records of a concrete type from an rrset.
func typedRecords[T dns.RR](set *rrset) []T {
	var result []T

	for _, rr := range set.rrs {
		if typed, ok := rr.(T); ok {
			result = append(result, typed)
		}
	}

	return result
}
