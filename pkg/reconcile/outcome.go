package reconcile

import (
	"net/netip"
	"time"

	"bt-dns-manager/pkg/device"
)

// Status is the per-record result of a cycle.
type Status string

const (
	StatusUpdated          Status = "updated"
	StatusSkippedUnchanged Status = "skipped-unchanged"
	StatusZoneNotFound     Status = "zone-not-found"
	StatusRecordNotFound   Status = "record-not-found"
	StatusUpdateFailed     Status = "update-failed"
)

// Outcome reports what happened to one configured record. Err is set when a
// provider call failed; a plain "not found" leaves it nil.
type Outcome struct {
	Err    error
	Record string
	Zone   string
	Status Status
}

// Result summarises one reconciliation cycle.
type Result struct {
	StartedAt  time.Time
	PrimaryIP  netip.Addr
	PreviousIP netip.Addr // baseline before the cycle, zero if none
	VPNIP      netip.Addr
	PersistErr error
	NotifyErr  error
	VPNStatus  device.LeakStatus
	Outcomes   []Outcome
	Duration   time.Duration
	Persisted  bool
	Notified   bool
	Leaked     bool
	Unchanged  bool
}

// Updated returns the names of the records that were rewritten.
func (r *Result) Updated() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Status == StatusUpdated {
			names = append(names, o.Record)
		}
	}
	return names
}

// Failed returns the outcomes that carry a provider error.
func (r *Result) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summary is a single word describing the cycle, used for logs and metrics.
func (r *Result) Summary() string {
	switch {
	case r.Leaked:
		return "leaked"
	case r.Unchanged:
		return "unchanged"
	case len(r.Updated()) > 0:
		return "updated"
	case len(r.Failed()) > 0:
		return "failed"
	default:
		return "noop"
	}
}
