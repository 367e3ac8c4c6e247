// Package reporter is the client that runs on the VPN host: it looks up its
// own public IP and pushes it to the server's report endpoint.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"bt-dns-manager/pkg/api"
	"bt-dns-manager/pkg/device"
	"bt-dns-manager/pkg/logging"
	"bt-dns-manager/pkg/observer"
)

var (
	// ErrServerUnreachable is returned when the status check fails.
	ErrServerUnreachable = errors.New("server unreachable")
	// ErrReportRejected is returned when the server does not acknowledge a report.
	ErrReportRejected = errors.New("report rejected")
)

// maxResponseBody bounds what is read from the server
const maxResponseBody = 64 << 10

// Config controls one reporter instance.
type Config struct {
	ServerURL string
	// Interval between runs when Continuous is set
	Interval   time.Duration
	Continuous bool
	Timeout    time.Duration
}

// Report describes one completed run.
type Report struct {
	IP       netip.Addr
	ServerIP string // the server's view of the primary IP, "unknown" if unset
	Status   device.LeakStatus
}

// Reporter pushes the VPN host's public IP to the server.
type Reporter struct {
	cfg      Config
	client   *http.Client
	observer observer.Observer
	logger   *logging.Logger
}

// New creates a reporter. A nil client gets one bounded by cfg.Timeout.
func New(cfg Config, obs observer.Observer, client *http.Client, logger *logging.Logger) (*Reporter, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("reporter: server url is required")
	}
	if obs == nil {
		return nil, errors.New("reporter: observer is required")
	}
	if cfg.Continuous && cfg.Interval <= 0 {
		return nil, errors.New("reporter: interval must be positive in continuous mode")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	return &Reporter{
		cfg:      cfg,
		client:   client,
		observer: obs,
		logger:   logger.WithComponent("reporter"),
	}, nil
}

// Run reports once, then keeps reporting on the interval when continuous
// mode is on. Failures in continuous mode are logged and retried next tick.
func (r *Reporter) Run(ctx context.Context) error {
	_, err := r.RunOnce(ctx)
	if !r.cfg.Continuous {
		if err == nil {
			r.logger.Info("One-time check complete")
		}
		return err
	}
	if err != nil {
		r.logger.Error("Report failed", "error", err)
	}

	r.logger.Info("Reporting continuously", "interval", r.cfg.Interval)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Report failed", "error", err)
			}
		}
	}
}

// RunOnce checks the server is reachable, observes the local public IP,
// reports it and compares it against the server's primary IP.
func (r *Reporter) RunOnce(ctx context.Context) (*Report, error) {
	status, err := r.fetchStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	r.logger.Debug("Server status", "devices", status.Devices, "vpn_status", status.VPNStatus)

	obsCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	ip, err := r.observer.Observe(obsCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("observe public ip: %w", err)
	}

	if err := r.sendReport(ctx, ip); err != nil {
		return nil, err
	}
	r.logger.Info("Reported vpn ip", "ip", ip)

	rep := &Report{IP: ip, ServerIP: status.Devices[device.Primary.WireName()], Status: device.VPNUnknown}
	if primary, err := netip.ParseAddr(rep.ServerIP); err == nil {
		rep.Status = device.Classify(primary, ip)
	} else {
		rep.ServerIP = "unknown"
	}

	if rep.Status == device.VPNLeaked {
		r.logger.Warn("VPN ip matches main ip, the VPN might not be working", "ip", ip, "main", rep.ServerIP)
	} else {
		r.logger.Info("VPN ip differs from main ip", "ip", ip, "main", rep.ServerIP)
	}
	return rep, nil
}

func (r *Reporter) fetchStatus(ctx context.Context) (*api.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.ServerURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var status api.StatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

func (r *Reporter) sendReport(ctx context.Context, ip netip.Addr) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(api.ReportRequest{DeviceType: device.VPN.WireName(), IP: ip.String()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.ServerURL+"/api/report-ip", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReportRejected, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	var ack struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &ack)

	if resp.StatusCode != http.StatusOK || !ack.Success {
		msg := ack.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %d %s", ErrReportRejected, resp.StatusCode, msg)
	}
	return nil
}
