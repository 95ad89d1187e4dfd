// Package device resolves the configured compute device and reports which
// accelerators are present on the machine.
package device

import (
	"fmt"
	"log/slog"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Device names accepted in configuration.
const (
	NameCPU    = "cpu"
	NameWebGPU = "webgpu"
	NameAuto   = "auto"
)

// Info describes one device.
type Info struct {
	Name      string
	Available bool
	// Trainable reports whether the engine has kernels for the device.
	Trainable bool
	Detail    string
}

// Probe lists the CPU and the WebGPU adapter, if any.
func Probe() []Info {
	gpu := Info{Name: NameWebGPU}
	gpu.Available, gpu.Detail = probeWebGPU()
	return []Info{
		{Name: NameCPU, Available: true, Trainable: true, Detail: "reference kernels"},
		gpu,
	}
}

// Resolve maps a configured device name to the device the engine runs on.
//
// "auto" always settles on the CPU and logs when an accelerator was seen.
// Requesting "webgpu" explicitly is an error.
func Resolve(name string) (tensor.Device, error) {
	switch name {
	case "", NameCPU:
		return tensor.CPU, nil
	case NameAuto:
		if ok, detail := probeWebGPU(); ok {
			slog.Info("webgpu adapter present but has no training kernels, using cpu", "adapter", detail)
		}
		return tensor.CPU, nil
	case NameWebGPU:
		return 0, fmt.Errorf("%w: device %q has no training kernels, use %q or %q",
			errdefs.ErrInvalidConfiguration, name, NameCPU, NameAuto)
	default:
		return 0, fmt.Errorf("%w: unknown device %q", errdefs.ErrInvalidConfiguration, name)
	}
}
