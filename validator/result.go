package validator

// This file contains the result aggregation: a pure fold over the chain links
// and the optional TLSA summary, with no I/O and no clock reads.

import (
	"time"

	"github.com/zonecheck/zonecheck/model"
)

// buildResult finalizes one validation run into its report. The report always
// carries the partial chain, even when the walk broke early.
func buildResult(
	domain string, walk *walkResult, tlsa *model.TLSASummary, validationTime time.Time,
) *model.ValidationResult {
	status := chainStatus(walk.links)

	if tlsa != nil {
		status = status.Worse(tlsa.Status)
	}

	// non-nil slices keep the JSON shape stable across outcomes
	links := walk.links
	if links == nil {
		links = []model.ChainLink{}
	}

	errs := []string{}
	if walk.errs != nil {
		for _, err := range walk.errs.Errors {
			errs = append(errs, err.Error())
		}
	}

	return &model.ValidationResult{
		Domain:         domain,
		Status:         status,
		ValidationTime: validationTime,
		ChainOfTrust:   links,
		Records:        walk.records.Normalized(),
		TLSASummary:    tlsa,
		Errors:         errs,
	}
}

// chainStatus folds the links into one status. An empty chain means the run
// produced nothing at all and is reported as error; otherwise the worst link
// wins.
func chainStatus(links []model.ChainLink) model.Status {
	if len(links) == 0 {
		return model.StatusError
	}

	status := model.StatusValid
	for _, link := range links {
		status = status.Worse(link.Status)
	}

	return status
}
