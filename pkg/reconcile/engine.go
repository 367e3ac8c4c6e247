// Package reconcile keeps the configured A records pointed at the current
// primary public IP.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"bt-dns-manager/pkg/device"
	"bt-dns-manager/pkg/logging"
	"bt-dns-manager/pkg/notify"
	"bt-dns-manager/pkg/observer"
	"bt-dns-manager/pkg/telemetry"
	"bt-dns-manager/pkg/zones"
)

// Config tunes the engine.
type Config struct {
	// Bound for every outbound call made during a cycle
	RequestTimeout time.Duration
	// TTL written on updated records; 1 means automatic
	TTL int
}

// Deps are the collaborators of an Engine. Observer, Registry and Zones are
// required.
type Deps struct {
	Observer observer.Observer
	Registry *device.Registry
	Zones    zones.Directory
	Notifier notify.Notifier
	Logger   *logging.Logger
	Metrics  *telemetry.Metrics
	Tracer   trace.Tracer
}

// Engine runs reconciliation cycles. At most one cycle runs at a time.
type Engine struct {
	cfg      Config
	observer observer.Observer
	registry *device.Registry
	zones    zones.Directory
	notifier notify.Notifier
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	now      func() time.Time

	running atomic.Bool

	leakMu       sync.Mutex
	lastLeakPair [2]netip.Addr
}

// New creates an engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 1
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewDefault()
	}
	if deps.Tracer == nil {
		deps.Tracer = tracenoop.NewTracerProvider().Tracer(telemetry.InstrumentationName)
	}
	return &Engine{
		cfg:      cfg,
		observer: deps.Observer,
		registry: deps.Registry,
		zones:    deps.Zones,
		notifier: deps.Notifier,
		logger:   deps.Logger.WithComponent("reconcile"),
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		now:      time.Now,
	}
}

// ObservePrimary looks up the primary IP and stores it in the live slot.
// The baseline is left alone.
func (e *Engine) ObservePrimary(ctx context.Context) (netip.Addr, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	ip, err := e.observer.Observe(callCtx)
	if err != nil {
		e.metrics.AddObserverFailure(ctx)
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrObservation, err)
	}
	e.registry.Observe(device.Primary, ip)
	return ip, nil
}

// Reconcile runs one cycle over targets. It returns ErrCycleInProgress when
// another cycle is running and ErrObservation when the primary IP could not
// be determined; every other failure is reported in the Result.
func (e *Engine) Reconcile(ctx context.Context, targets []string) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer e.running.Store(false)

	ctx, span := e.tracer.Start(ctx, "reconcile", trace.WithAttributes(
		attribute.Int("records", len(targets)),
	))
	defer span.End()

	res := &Result{StartedAt: e.now()}
	defer func() {
		res.Duration = e.now().Sub(res.StartedAt)
	}()

	ip, err := e.ObservePrimary(ctx)
	if err != nil {
		e.logger.Error("Failed to observe primary ip", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "observation failed")
		e.metrics.RecordCycle(ctx, "observation-failed", e.now().Sub(res.StartedAt))
		return nil, err
	}
	res.PrimaryIP = ip
	res.PreviousIP, _ = e.registry.Baseline(device.Primary)
	span.SetAttributes(attribute.String("primary_ip", ip.String()))

	if vpn, ok := e.registry.Get(device.VPN); ok {
		res.VPNIP = vpn.Addr
	}
	res.VPNStatus = device.Classify(ip, res.VPNIP)

	if res.VPNStatus == device.VPNLeaked {
		res.Leaked = true
		e.handleLeak(ctx, ip, res)
		e.finish(ctx, res)
		return res, nil
	}
	e.clearLeak()

	if ip == res.PreviousIP {
		res.Unchanged = true
		e.logger.Debug("Primary ip unchanged", "ip", ip)
		e.finish(ctx, res)
		return res, nil
	}

	e.logger.Info("Primary ip changed", "previous", res.PreviousIP, "current", ip)
	res.Outcomes = e.apply(ctx, ip, targets)

	if updated := res.Updated(); len(updated) > 0 {
		e.commit(ctx, ip, updated, res)
	}

	e.finish(ctx, res)
	return res, nil
}

// apply brings each target to ip. Targets are independent: a failure on one
// never stops the others.
func (e *Engine) apply(ctx context.Context, ip netip.Addr, targets []string) []Outcome {
	outcomes := make([]Outcome, 0, len(targets))

	var (
		zoneList []zones.Zone
		zonesErr error
	)
	if len(targets) > 0 {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		zoneList, zonesErr = e.zones.ListZones(callCtx)
		cancel()
		if zonesErr != nil {
			zonesErr = fmt.Errorf("%w: %v", ErrZoneLookup, zonesErr)
			e.logger.Error("Failed to list zones", "error", zonesErr)
		}
	}

	for _, target := range targets {
		o := e.applyOne(ctx, ip, target, zoneList, zonesErr)
		e.metrics.RecordOutcome(ctx, string(o.Status))

		args := []any{"record", o.Record, "zone", o.Zone, "status", o.Status}
		if o.Err != nil {
			e.logger.Warn("Record not reconciled", append(args, "error", o.Err)...)
		} else {
			e.logger.Info("Record reconciled", args...)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (e *Engine) applyOne(ctx context.Context, ip netip.Addr, target string, zoneList []zones.Zone, zonesErr error) Outcome {
	o := Outcome{Record: target}

	zoneName, ok := zones.ZoneName(target)
	if !ok {
		o.Status = StatusZoneNotFound
		return o
	}
	o.Zone = zoneName

	if zonesErr != nil {
		o.Status = StatusZoneNotFound
		o.Err = zonesErr
		return o
	}
	zone, err := zones.FindZone(zoneList, zoneName)
	if err != nil {
		o.Status = StatusZoneNotFound
		return o
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	records, err := e.zones.ListRecords(callCtx, zone.ID)
	cancel()
	if err != nil {
		o.Status = StatusRecordNotFound
		o.Err = fmt.Errorf("%w: %v", ErrRecordLookup, err)
		return o
	}

	rec, err := zones.FindARecord(records, target)
	if err != nil {
		o.Status = StatusRecordNotFound
		return o
	}
	if rec.Content == ip.String() {
		o.Status = StatusSkippedUnchanged
		return o
	}

	rec.ZoneID = zone.ID
	rec.Type = "A"
	rec.Content = ip.String()
	rec.TTL = e.cfg.TTL

	callCtx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
	err = e.zones.UpdateRecord(callCtx, rec)
	cancel()
	if err != nil {
		o.Status = StatusUpdateFailed
		o.Err = fmt.Errorf("%w: %v", ErrUpdate, err)
		return o
	}

	o.Status = StatusUpdated
	return o
}

// commit persists ip as the new baseline and announces the updated records.
// Neither failure undoes the DNS changes.
func (e *Engine) commit(ctx context.Context, ip netip.Addr, updated []string, res *Result) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	err := e.registry.Set(callCtx, device.Primary, ip)
	cancel()
	if err != nil {
		res.PersistErr = err
		e.logger.Error("Failed to persist primary ip", "ip", ip, "error", err)
	} else {
		res.Persisted = true
	}

	callCtx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
	err = e.notifier.NotifyUpdate(callCtx, notify.Update{IP: ip, VPN: res.VPNIP, Records: updated})
	cancel()
	if err != nil {
		res.NotifyErr = wrapNotify(err)
		e.metrics.AddNotificationFailure(ctx, "update")
		e.logger.Error("Failed to send update notification", "error", err)
		return
	}
	res.Notified = true
}

// handleLeak warns once per distinct leaked (primary, vpn) pair.
func (e *Engine) handleLeak(ctx context.Context, ip netip.Addr, res *Result) {
	e.metrics.AddLeakDetected(ctx, "reconcile")
	e.logger.Warn("VPN ip matches primary ip, skipping dns updates", "ip", ip)

	pair := [2]netip.Addr{ip, res.VPNIP}
	e.leakMu.Lock()
	seen := e.lastLeakPair == pair
	e.leakMu.Unlock()
	if seen {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	err := e.notifier.NotifyLeak(callCtx, ip, res.VPNIP)
	cancel()
	if err != nil {
		res.NotifyErr = wrapNotify(err)
		e.metrics.AddNotificationFailure(ctx, "leak")
		e.logger.Error("Failed to send leak notification", "error", err)
		return
	}

	e.leakMu.Lock()
	e.lastLeakPair = pair
	e.leakMu.Unlock()
	res.Notified = true
}

func (e *Engine) clearLeak() {
	e.leakMu.Lock()
	e.lastLeakPair = [2]netip.Addr{}
	e.leakMu.Unlock()
}

func (e *Engine) finish(ctx context.Context, res *Result) {
	summary := res.Summary()
	e.metrics.RecordCycle(ctx, summary, e.now().Sub(res.StartedAt))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("result", summary),
		attribute.String("vpn_status", string(res.VPNStatus)),
		attribute.Int("updated", len(res.Updated())),
	)
	if failed := res.Failed(); len(failed) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d records failed", len(failed)))
	}
}

func wrapNotify(err error) error {
	if errors.Is(err, ErrNotification) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNotification, err)
}
