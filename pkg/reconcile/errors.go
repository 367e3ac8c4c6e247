package reconcile

import (
	"errors"

	"bt-dns-manager/pkg/device"
	"bt-dns-manager/pkg/notify"
)

var (
	// ErrObservation aborts a cycle: the primary IP could not be determined
	ErrObservation = errors.New("primary ip observation failed")

	// ErrZoneLookup marks outcomes whose zone list could not be fetched
	ErrZoneLookup = errors.New("zone lookup failed")

	// ErrRecordLookup marks outcomes whose record list could not be fetched
	ErrRecordLookup = errors.New("record lookup failed")

	// ErrUpdate marks outcomes whose record update was rejected
	ErrUpdate = errors.New("record update failed")

	// ErrNotification is set on Result.NotifyErr when a notification was not delivered
	ErrNotification = notify.ErrDelivery

	// ErrPersistence is set on Result.PersistErr when the new baseline was not stored
	ErrPersistence = device.ErrPersistence

	// ErrCycleInProgress is returned when a cycle is requested while another runs
	ErrCycleInProgress = errors.New("reconciliation already in progress")
)
