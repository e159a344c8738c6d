package compute

import (
	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/errors"
	"github.com/wippyai/compute-runtime/resource"
)

// Platform is one driver platform. Platforms and devices are not reference
// counted and need no release.
type Platform struct {
	backend backend.Backend
	handle  resource.Handle
	info    backend.PlatformInfo
}

// Platforms lists the platforms of b in driver order.
func Platforms(b backend.Backend) ([]*Platform, error) {
	handles, code := b.Platforms()
	if err := errors.Check(errors.PhaseQuery, "platforms", code); err != nil {
		return nil, err
	}
	out := make([]*Platform, 0, len(handles))
	for _, h := range handles {
		info, code := b.PlatformInfo(h)
		if err := errors.Check(errors.PhaseQuery, "platform_info", code); err != nil {
			return nil, err
		}
		out = append(out, &Platform{backend: b, handle: h, info: info})
	}
	return out, nil
}

func (p *Platform) Handle() resource.Handle { return p.handle }
func (p *Platform) Info() backend.PlatformInfo { return p.info }
func (p *Platform) Name() string { return p.info.Name }
func (p *Platform) Backend() backend.Backend { return p.backend }

// Devices lists the devices of the given type.
func (p *Platform) Devices(typ backend.DeviceType) ([]*Device, error) {
	handles, code := p.backend.Devices(p.handle, typ)
	if err := errors.Check(errors.PhaseQuery, "devices", code); err != nil {
		return nil, err
	}
	out := make([]*Device, 0, len(handles))
	for _, h := range handles {
		info, code := p.backend.DeviceInfo(h)
		if err := errors.Check(errors.PhaseQuery, "device_info", code); err != nil {
			return nil, err
		}
		out = append(out, &Device{platform: p, handle: h, info: info})
	}
	return out, nil
}

// Device is a compute device with the capabilities reported when it was
// enumerated.
type Device struct {
	platform *Platform
	handle   resource.Handle
	info     backend.DeviceInfo
}

func (d *Device) Handle() resource.Handle { return d.handle }
func (d *Device) Platform() *Platform { return d.platform }
func (d *Device) Info() backend.DeviceInfo { return d.info }
func (d *Device) Name() string { return d.info.Name }

// Available queries the current availability of the device.
func (d *Device) Available() bool {
	info, code := d.platform.backend.DeviceInfo(d.handle)
	return code == errors.Success && info.Available
}

// DefaultDevice returns the first device of the first platform of b.
func DefaultDevice(b backend.Backend) (*Device, error) {
	platforms, err := Platforms(b)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		return nil, errors.NotFound(errors.PhaseQuery, "platform", "default")
	}
	devices, err := platforms[0].Devices(backend.DeviceDefault)
	if err != nil {
		return nil, err
	}
	return devices[0], nil
}
