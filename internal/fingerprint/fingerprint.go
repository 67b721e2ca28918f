// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package fingerprint derives a stable machine identity and the host
// attributes recorded with every login. Every field falls back to a fixed
// value on its own, so callers never see an error.
package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/toeirei/gatekeeper/internal/model"
)

// Fallback values used when a primary source is unavailable.
const (
	UnknownMachine = "Unknown Machine"
	UnknownCPU     = "Unknown CPU"
	UnknownMAC     = "Unknown MAC"
)

// probeTimeout bounds each system query.
const probeTimeout = 3 * time.Second

// Provider supplies the current machine's fingerprint.
type Provider interface {
	Fingerprint() model.MachineFingerprint
	Host() model.HostAttributes
}

// sources are the system queries behind the host provider. Tests replace
// them to exercise the fallbacks.
type sources struct {
	hostID     func(ctx context.Context) (string, error)
	hostname   func() (string, error)
	cpuInfo    func(ctx context.Context) ([]cpu.InfoStat, error)
	interfaces func(ctx context.Context) (psnet.InterfaceStatList, error)
	hostInfo   func(ctx context.Context) (*host.InfoStat, error)
}

func systemSources() sources {
	return sources{
		hostID:     host.HostIDWithContext,
		hostname:   os.Hostname,
		cpuInfo:    cpu.InfoWithContext,
		interfaces: psnet.InterfacesWithContext,
		hostInfo:   host.InfoWithContext,
	}
}

// HostProvider reads the real machine through gopsutil. The first call
// computes the attributes; later calls return the cached value.
type HostProvider struct {
	src     sources
	version string
	load    func() model.HostAttributes
}

// NewHostProvider returns a provider for this machine. version is recorded
// in the auxiliary host metadata.
func NewHostProvider(version string) *HostProvider {
	return newHostProvider(systemSources(), version)
}

func newHostProvider(src sources, version string) *HostProvider {
	p := &HostProvider{src: src, version: version}
	p.load = sync.OnceValue(p.collect)
	return p
}

// Fingerprint returns the machine fingerprint.
func (p *HostProvider) Fingerprint() model.MachineFingerprint {
	return p.load().Fingerprint
}

// Host returns the fingerprint with the OS version and auxiliary metadata.
func (p *HostProvider) Host() model.HostAttributes {
	return p.load()
}

func (p *HostProvider) collect() model.HostAttributes {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	hostname, _ := p.src.hostname()
	fp := model.MachineFingerprint{
		MachineID:  p.machineID(ctx, hostname),
		CPUID:      p.cpuID(ctx),
		MACAddress: p.macAddress(ctx),
	}
	return model.HostAttributes{
		Fingerprint: fp,
		OSVersion:   p.osVersion(ctx),
		Auxiliary:   auxiliary(hostname, p.version),
	}
}

func (p *HostProvider) machineID(ctx context.Context, hostname string) string {
	if id, err := p.src.hostID(ctx); err == nil && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	if strings.TrimSpace(hostname) != "" {
		return strings.TrimSpace(hostname)
	}
	return UnknownMachine
}

func (p *HostProvider) cpuID(ctx context.Context) string {
	infos, err := p.src.cpuInfo(ctx)
	if err != nil || len(infos) == 0 {
		return UnknownCPU
	}
	c := infos[0]
	if c.VendorID == "" && c.Family == "" && c.Model == "" {
		if c.ModelName != "" {
			return c.ModelName
		}
		return UnknownCPU
	}
	return fmt.Sprintf("%s-%s-%s-%d", c.VendorID, c.Family, c.Model, c.Stepping)
}

func (p *HostProvider) macAddress(ctx context.Context) string {
	ifaces, err := p.src.interfaces(ctx)
	if err != nil {
		return UnknownMAC
	}
	return firstUpMAC(ifaces)
}

// firstUpMAC picks the first interface, by name, that is up, is not a
// loopback and has a non-zero hardware address.
func firstUpMAC(ifaces psnet.InterfaceStatList) string {
	sorted := make(psnet.InterfaceStatList, len(ifaces))
	copy(sorted, ifaces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, iface := range sorted {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		if mac := normaliseMAC(iface.HardwareAddr); mac != "" {
			return mac
		}
	}
	return UnknownMAC
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

// normaliseMAC renders "00:1a:2b:3c:4d:5e" as "001A2B3C4D5E". All-zero
// addresses yield "".
func normaliseMAC(addr string) string {
	mac := strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(addr))
	if strings.Trim(mac, "0") == "" {
		return ""
	}
	return mac
}

func (p *HostProvider) osVersion(ctx context.Context) string {
	info, err := p.src.hostInfo(ctx)
	if err != nil || info == nil {
		return runtime.GOOS
	}
	parts := []string{info.Platform, info.PlatformVersion}
	if info.Platform == "" {
		parts = []string{info.OS, info.KernelVersion}
	}
	if v := strings.TrimSpace(strings.Join(parts, " ")); v != "" {
		return v
	}
	return runtime.GOOS
}

// auxiliary encodes the supplementary metadata stored with each login.
func auxiliary(hostname, version string) string {
	b, err := json.Marshal(struct {
		Hostname string `json:"hostname,omitempty"`
		Platform string `json:"platform"`
		Version  string `json:"client_version,omitempty"`
	}{hostname, runtime.GOOS + "/" + runtime.GOARCH, version})
	if err != nil {
		return ""
	}
	return string(b)
}
