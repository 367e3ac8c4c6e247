package api

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"runtime"
	"strings"

	"bt-dns-manager/pkg/device"
)

// maxReportBody bounds the report request body
const maxReportBody = 1 << 10

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sys := collectSystemMetrics(r.Context())

	response := HealthResponse{
		Status:     "ok",
		Uptime:     s.getUptime(),
		Version:    s.version,
		MemoryRSS:  sys.MemUsed,
		MemTotal:   sys.MemTotal,
		Goroutines: runtime.NumGoroutine(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

// handleReportIP handles POST /api/report-ip
func (s *Server) handleReportIP(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.DeviceType = strings.TrimSpace(req.DeviceType)
	req.IP = strings.TrimSpace(req.IP)
	if req.DeviceType == "" || req.IP == "" {
		s.writeError(w, http.StatusBadRequest, "Missing deviceType or ip")
		return
	}

	addr, err := netip.ParseAddr(req.IP)
	if err != nil || !addr.Unmap().Is4() {
		s.writeError(w, http.StatusBadRequest, "Invalid ip")
		return
	}
	addr = addr.Unmap()

	d, ok := device.ParseDevice(req.DeviceType)
	if !ok || d != device.VPN {
		// Only the VPN path is pushed; anything else is acknowledged and dropped.
		s.logger.Debug("Ignoring report for device", "device_type", req.DeviceType, "ip", addr)
		s.metrics.AddReport(r.Context(), "other")
		s.writeJSON(w, http.StatusOK, ReportResponse{Success: true})
		return
	}

	s.metrics.AddReport(r.Context(), d.String())
	if err := s.registry.Set(r.Context(), device.VPN, addr); err != nil {
		s.logger.Error("Failed to persist vpn ip", "ip", addr, "error", err)
	} else {
		s.logger.Info("VPN ip reported", "ip", addr)
	}

	if primary, ok := s.registry.Get(device.Primary); ok {
		if device.Classify(primary.Addr, addr) == device.VPNLeaked {
			s.logger.Warn("VPN leak detected: vpn ip matches primary ip", "ip", addr)
			s.metrics.AddLeakDetected(r.Context(), "report")
		}
	}

	s.writeJSON(w, http.StatusOK, ReportResponse{Success: true})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.registry.Snapshot()

	response := StatusResponse{
		Status: "ok",
		Devices: map[string]string{
			device.Primary.WireName(): addrOrUnknown(snap.Primary),
			device.VPN.WireName():     addrOrUnknown(snap.VPN),
		},
		VPNStatus: string(snap.Status),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func addrOrUnknown(ip *device.ObservedIP) string {
	if ip == nil || !ip.Addr.IsValid() {
		return unknownIP
	}
	return ip.Addr.String()
}
