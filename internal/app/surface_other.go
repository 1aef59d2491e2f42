//go:build !darwin && !linux

package app

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rajveermalviya/go-webgpu/wgpu"
	"go.uber.org/zap"
)

const instanceBackends = wgpu.InstanceBackend_Primary

// CreateSurface is not implemented on this platform.
func CreateSurface(instance *wgpu.Instance, window *glfw.Window) *wgpu.Surface {
	zap.L().Error("no WebGPU surface for this platform",
		zap.String("component", "surface"),
		zap.String("goos", runtime.GOOS),
	)
	return nil
}
