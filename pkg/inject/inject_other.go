//go:build !windows
// +build !windows

package inject

// sysInjector is the fallback for every non-Windows build: spec.md
// section 4.5 requires every injection attempt to fail on a platform
// without a supported backend, while the connection and service continue.
type sysInjector struct{}

// New returns the platform injector for this build.
func New() Injector { return sysInjector{} }

func (sysInjector) MouseMove(dx, dy int) error            { return ErrUnsupportedPlatform }
func (sysInjector) MouseButton(b Button, down bool) error  { return ErrUnsupportedPlatform }
func (sysInjector) MouseWheel(deltaX, deltaY int) error    { return ErrUnsupportedPlatform }
func (sysInjector) Key(k VKey, down bool) error            { return ErrUnsupportedPlatform }
