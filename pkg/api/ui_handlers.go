package api

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"bt-dns-manager/pkg/device"
)

//go:embed ui/templates/*
var templatesFS embed.FS

var (
	dashboardTemplate *template.Template
	templatesOnce     sync.Once
	templatesErr      error
)

// dashboardData feeds dashboard.html
type dashboardData struct {
	State    string // good, warning, error
	Message  string
	Version  string
	Devices  []dashboardDevice
	LastSync *dashboardSync
}

type dashboardDevice struct {
	Name string
	IP   string
	Ago  string
}

type dashboardSync struct {
	Summary string
	Ago     string
	Updated []string
}

func formatVersionLabel(version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return "vdev"
	}
	if strings.HasPrefix(strings.ToLower(v), "v") {
		return v
	}
	return "v" + v
}

// initTemplates parses the embedded templates once
func initTemplates() error {
	templatesOnce.Do(func() {
		tmplFS, err := fs.Sub(templatesFS, "ui/templates")
		if err != nil {
			templatesErr = err
			return
		}

		funcMap := template.FuncMap{
			"join": strings.Join,
		}

		dashboardTemplate, templatesErr = template.New("dashboard.html").Funcs(funcMap).ParseFS(tmplFS, "dashboard.html")
	})
	return templatesErr
}

// handleDashboard handles GET /
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	snap := s.registry.Snapshot()
	now := time.Now()

	data := dashboardData{
		Version: formatVersionLabel(s.version),
		Devices: []dashboardDevice{
			dashboardRow(device.Primary, snap.Primary, now),
			dashboardRow(device.VPN, snap.VPN, now),
		},
	}

	switch snap.Status {
	case device.VPNDistinct:
		data.State = "good"
		data.Message = "VPN is active: traffic leaves through a different IP"
	case device.VPNLeaked:
		data.State = "error"
		data.Message = "VPN leak: the VPN reports the same IP as the primary connection"
	default:
		data.State = "warning"
		data.Message = "Waiting for both devices to report an IP"
	}

	if s.lastResult != nil {
		if res := s.lastResult(); res != nil {
			data.LastSync = &dashboardSync{
				Summary: res.Summary(),
				Ago:     humanize.RelTime(res.StartedAt, now, "ago", "from now"),
				Updated: res.Updated(),
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		s.logger.Error("Failed to render dashboard", "error", err)
	}
}

func dashboardRow(d device.Device, ip *device.ObservedIP, now time.Time) dashboardDevice {
	row := dashboardDevice{Name: d.WireName(), IP: addrOrUnknown(ip), Ago: "never"}
	if ip != nil && !ip.ObservedAt.IsZero() {
		row.Ago = humanize.RelTime(ip.ObservedAt, now, "ago", "from now")
	}
	return row
}
