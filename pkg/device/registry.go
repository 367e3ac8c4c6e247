package device

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"bt-dns-manager/pkg/logging"
	"bt-dns-manager/pkg/storage"
)

// ErrPersistence is returned by Set when the in-memory update succeeded but
// writing it to the store did not.
var ErrPersistence = errors.New("persisting device ip failed")

// Registry holds the live address of each device plus the last persisted
// ("baseline") address. For the primary device the baseline is the IP the
// DNS records were last synchronised to.
type Registry struct {
	store    storage.Store
	logger   *logging.Logger
	now      func() time.Time
	live     map[Device]ObservedIP
	baseline map[Device]netip.Addr
	mu       sync.RWMutex
}

// Snapshot is a consistent copy of both live slots.
type Snapshot struct {
	Primary *ObservedIP
	VPN     *ObservedIP
	Status  LeakStatus
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store storage.Store, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Registry{
		store:    store,
		logger:   logger.WithComponent("registry"),
		now:      time.Now,
		live:     make(map[Device]ObservedIP, len(All)),
		baseline: make(map[Device]netip.Addr, len(All)),
	}
}

// Get returns the live address of d.
func (r *Registry) Get(d Device) (ObservedIP, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ip, ok := r.live[d]
	return ip, ok
}

// Observe overwrites the live slot of d without touching the store.
func (r *Registry) Observe(d Device, addr netip.Addr) ObservedIP {
	ip := ObservedIP{Device: d, Addr: addr, ObservedAt: r.now()}
	r.mu.Lock()
	r.live[d] = ip
	r.mu.Unlock()
	return ip
}

// Set overwrites the live slot and the baseline of d, then persists addr.
// A failed write leaves both in-memory slots updated, so the process keeps
// comparing against addr until the next restart.
func (r *Registry) Set(ctx context.Context, d Device, addr netip.Addr) error {
	r.mu.Lock()
	r.live[d] = ObservedIP{Device: d, Addr: addr, ObservedAt: r.now()}
	r.baseline[d] = addr
	r.mu.Unlock()

	if err := r.store.Save(ctx, d.String(), addr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersistence, d, err)
	}
	return nil
}

// Baseline returns the last persisted address of d.
func (r *Registry) Baseline(d Device) (netip.Addr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.baseline[d]
	return addr, ok
}

// LoadAtStartup seeds the registry from the store. The VPN value becomes
// live immediately; the primary value only becomes the baseline since it
// has to be re-observed before it can be trusted. A device that fails to
// load is skipped; the others are still seeded and the failures are joined.
func (r *Registry) LoadAtStartup(ctx context.Context) error {
	var errs []error
	for _, d := range All {
		entry, err := r.store.Load(ctx, d.String())
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Debug("No persisted ip", "device", d)
			continue
		}
		if err != nil {
			r.logger.Warn("Skipping persisted ip", "device", d, "error", err)
			errs = append(errs, fmt.Errorf("load %s: %w", d, err))
			continue
		}

		r.mu.Lock()
		r.baseline[d] = entry.IP
		if d == VPN {
			observed := entry.UpdatedAt
			if observed.IsZero() {
				observed = r.now()
			}
			r.live[d] = ObservedIP{Device: d, Addr: entry.IP, ObservedAt: observed}
		}
		r.mu.Unlock()

		r.logger.Info("Loaded persisted ip", "device", d, "ip", entry.IP)
	}
	return errors.Join(errs...)
}

// Snapshot returns both live slots and their leak classification.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var snap Snapshot
	var primary, vpn netip.Addr
	if ip, ok := r.live[Primary]; ok {
		snap.Primary = &ip
		primary = ip.Addr
	}
	if ip, ok := r.live[VPN]; ok {
		snap.VPN = &ip
		vpn = ip.Addr
	}
	snap.Status = Classify(primary, vpn)
	return snap
}

// Status classifies the current live slots.
func (r *Registry) Status() LeakStatus {
	return r.Snapshot().Status
}

// Close closes the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}
