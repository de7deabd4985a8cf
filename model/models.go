package model

import (
	"fmt"
	"time"
)

// Status is the DNSSEC security status of a zone or of a whole validation run.
type Status int

const (
	// StatusValid all signatures and the chain of trust verified
	StatusValid Status = iota
	// StatusInsecure zone deliberately has no DNSSEC below a delegation
	StatusInsecure
	// StatusIndeterminate validation could not be completed (network/protocol fault)
	StatusIndeterminate
	// StatusBogus DNSSEC data present but cryptographically invalid
	StatusBogus
	// StatusError the run could not produce any chain at all
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInsecure:
		return "insecure"
	case StatusIndeterminate:
		return "indeterminate"
	case StatusBogus:
		return "bogus"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText implements `encoding.TextMarshaler`.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements `encoding.TextUnmarshaler`.
func (s *Status) UnmarshalText(data []byte) error {
	switch string(data) {
	case "valid":
		*s = StatusValid
	case "insecure":
		*s = StatusInsecure
	case "indeterminate":
		*s = StatusIndeterminate
	case "bogus":
		*s = StatusBogus
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("invalid status: %q", string(data))
	}

	return nil
}

// Worse returns the worse of the two statuses.
// Precedence: error > bogus > indeterminate > insecure > valid, so a
// cryptographic failure is never masked by a later benign classification.
func (s Status) Worse(other Status) Status {
	if statusRank(other) > statusRank(s) {
		return other
	}

	return s
}

func statusRank(s Status) int {
	switch s {
	case StatusValid:
		return 0
	case StatusInsecure:
		return 1
	case StatusIndeterminate:
		return 2
	case StatusBogus:
		return 3
	case StatusError:
		return 4
	default:
		return 4
	}
}

// DaneStatus is the outcome of the TLSA/DANE certificate binding check.
type DaneStatus int

const (
	// DaneStatusValid at least one TLSA record matches the live certificate
	DaneStatusValid DaneStatus = iota
	// DaneStatusInvalid TLSA records exist but none match
	DaneStatusInvalid
	// DaneStatusNoTLSA no TLSA RRset is published
	DaneStatusNoTLSA
	// DaneStatusDNSSECRequired the TLSA RRset itself is not DNSSEC-valid
	DaneStatusDNSSECRequired
	// DaneStatusError the check could not be completed
	DaneStatusError
)

func (d DaneStatus) String() string {
	switch d {
	case DaneStatusValid:
		return "valid"
	case DaneStatusInvalid:
		return "invalid"
	case DaneStatusNoTLSA:
		return "no-tlsa"
	case DaneStatusDNSSECRequired:
		return "dnssec-required"
	case DaneStatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// MarshalText implements `encoding.TextMarshaler`.
func (d DaneStatus) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements `encoding.TextUnmarshaler`.
func (d *DaneStatus) UnmarshalText(data []byte) error {
	switch string(data) {
	case "valid":
		*d = DaneStatusValid
	case "invalid":
		*d = DaneStatusInvalid
	case "no-tlsa":
		*d = DaneStatusNoTLSA
	case "dnssec-required":
		*d = DaneStatusDNSSECRequired
	case "error":
		*d = DaneStatusError
	default:
		return fmt.Errorf("invalid dane status: %q", string(data))
	}

	return nil
}

// ChainStatus maps a DANE outcome into the chain status ordering so the
// aggregator can fold it into the overall result.
func (d DaneStatus) ChainStatus() Status {
	switch d {
	case DaneStatusValid, DaneStatusNoTLSA:
		return StatusValid
	case DaneStatusDNSSECRequired:
		return StatusInsecure
	case DaneStatusInvalid:
		return StatusBogus
	default:
		return StatusIndeterminate
	}
}

// ChainLink is the validation outcome for a single zone cut.
type ChainLink struct {
	Zone      string `json:"zone"`
	Status    Status `json:"status"`
	Algorithm uint8  `json:"algorithm,omitempty"`
	KeyTag    uint16 `json:"key_tag,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TLSASummary summarizes the TLSA/DANE check for the report.
type TLSASummary struct {
	Status       Status     `json:"status"`
	RecordsFound int        `json:"records_found"`
	DaneStatus   DaneStatus `json:"dane_status"`
	Message      string     `json:"message"`
}

// ValidationResult is the complete report of one validation run. It is
// built once per request and never mutated after finalization.
type ValidationResult struct {
	Domain         string       `json:"domain"`
	Status         Status       `json:"status"`
	ValidationTime time.Time    `json:"validation_time"`
	ChainOfTrust   []ChainLink  `json:"chain_of_trust"`
	Records        RecordSet    `json:"records"`
	TLSASummary    *TLSASummary `json:"tlsa_summary,omitempty"`
	Errors         []string     `json:"errors"`
}
