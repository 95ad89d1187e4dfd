//go:build !windows

package device

func probeWebGPU() (bool, string) {
	return false, "webgpu probing is only built on windows"
}
