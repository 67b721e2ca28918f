// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package fingerprint

import "github.com/toeirei/gatekeeper/internal/model"

// Static is a Provider with fixed attributes.
type Static struct {
	Attributes model.HostAttributes
}

// NewStatic returns a Static provider for machineID with unknown CPU and MAC.
func NewStatic(machineID string) *Static {
	return &Static{Attributes: model.HostAttributes{
		Fingerprint: model.MachineFingerprint{MachineID: machineID, CPUID: UnknownCPU, MACAddress: UnknownMAC},
	}}
}

func (s *Static) Fingerprint() model.MachineFingerprint { return s.Attributes.Fingerprint }

func (s *Static) Host() model.HostAttributes { return s.Attributes }

// overridden pins the machine id of another provider.
type overridden struct {
	base      Provider
	machineID string
}

// WithOverride returns base with its machine id replaced by machineID. An
// empty machineID returns base unchanged.
func WithOverride(base Provider, machineID string) Provider {
	if machineID == "" {
		return base
	}
	return &overridden{base: base, machineID: machineID}
}

func (o *overridden) Fingerprint() model.MachineFingerprint {
	fp := o.base.Fingerprint()
	fp.MachineID = o.machineID
	return fp
}

func (o *overridden) Host() model.HostAttributes {
	h := o.base.Host()
	h.Fingerprint.MachineID = o.machineID
	return h
}
