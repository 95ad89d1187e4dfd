//go:build windows

package device

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

func probeWebGPU() (available bool, detail string) {
	// wgpu panics when the native library is missing.
	defer func() {
		if r := recover(); r != nil {
			available, detail = false, fmt.Sprintf("native library unavailable: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false, err.Error()
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false, err.Error()
	}
	adapter.Release()
	return true, "default adapter"
}
