//go:build windows
// +build windows

package inject

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32       = windows.NewLazySystemDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

// Windows INPUT union layout, see
// https://learn.microsoft.com/en-us/windows/win32/api/winuser/ns-winuser-input
const (
	inputMouse    uint32 = 0
	inputKeyboard uint32 = 1

	mouseEventMove      uint32 = 0x0001
	mouseEventLeftDown  uint32 = 0x0002
	mouseEventLeftUp    uint32 = 0x0004
	mouseEventRightDown uint32 = 0x0008
	mouseEventRightUp   uint32 = 0x0010
	mouseEventMidDown   uint32 = 0x0020
	mouseEventMidUp     uint32 = 0x0040
	mouseEventWheel     uint32 = 0x0800
	mouseEventHWheel    uint32 = 0x1000

	keyEventKeyUp uint32 = 0x0002

	wheelDelta = 120
)

type mouseInput struct {
	dx, dy      int32
	mouseData   uint32
	flags       uint32
	time        uint32
	extraInfo   uintptr
}

type keybdInput struct {
	vk        uint16
	scan      uint16
	flags     uint32
	time      uint32
	extraInfo uintptr
}

// rawInput mirrors the Windows INPUT struct. The union is sized to
// mouseInput (32 bytes), which is the larger of mouseInput/keybdInput;
// keybdInput is written through the same bytes via unsafe.Pointer in Key.
type rawInput struct {
	inputType uint32
	_         uint32 // padding to align the union on 8-byte boundary
	mi        mouseInput
}

// rawInput must match the real INPUT struct's size on amd64 exactly:
// SendInput hard-fails if cbSize != sizeof(INPUT).
var _ = [1]byte{}[unsafe.Sizeof(rawInput{})-40]

func sendInput(in rawInput) error {
	ret, _, err := procSendInput.Call(
		1,
		uintptr(unsafe.Pointer(&in)),
		unsafe.Sizeof(in),
	)
	if ret == 0 {
		return fmt.Errorf("inject: SendInput failed: %w", err)
	}
	return nil
}

// sysInjector is the Windows SendInput-backed Injector.
type sysInjector struct{}

// New returns the platform injector for this build.
func New() Injector { return sysInjector{} }

func (sysInjector) MouseMove(dx, dy int) error {
	return sendInput(rawInput{
		inputType: inputMouse,
		mi:        mouseInput{dx: int32(dx), dy: int32(dy), flags: mouseEventMove},
	})
}

func (sysInjector) MouseButton(b Button, down bool) error {
	var downFlag, upFlag uint32
	switch b {
	case ButtonLeft:
		downFlag, upFlag = mouseEventLeftDown, mouseEventLeftUp
	case ButtonMiddle:
		downFlag, upFlag = mouseEventMidDown, mouseEventMidUp
	case ButtonRight:
		downFlag, upFlag = mouseEventRightDown, mouseEventRightUp
	default:
		return nil
	}
	flags := upFlag
	if down {
		flags = downFlag
	}
	return sendInput(rawInput{inputType: inputMouse, mi: mouseInput{flags: flags}})
}

func (sysInjector) MouseWheel(deltaX, deltaY int) error {
	if deltaY != 0 {
		if err := sendInput(rawInput{
			inputType: inputMouse,
			mi:        mouseInput{mouseData: uint32(int32(deltaY * wheelDelta)), flags: mouseEventWheel},
		}); err != nil {
			return err
		}
	}
	if deltaX != 0 {
		if err := sendInput(rawInput{
			inputType: inputMouse,
			mi:        mouseInput{mouseData: uint32(int32(deltaX * wheelDelta)), flags: mouseEventHWheel},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (sysInjector) Key(k VKey, down bool) error {
	vk, err := vkeyToWindowsVK(k)
	if err != nil {
		return nil // unmapped keys are a no-op success, not reached via Key since Dispatch pre-filters
	}
	var flags uint32
	if !down {
		flags = keyEventKeyUp
	}
	kb := keybdInput{vk: vk, flags: flags}

	in := rawInput{inputType: inputKeyboard}
	*(*keybdInput)(unsafe.Pointer(&in.mi)) = kb
	return sendInput(in)
}

// vkeyToWindowsVK maps our platform-independent VKey onto a Windows
// virtual-key code. ASCII letters/digits already match Windows' VK_0..VK_9
// / VK_A..VK_Z values; named keys translate through a small table.
func vkeyToWindowsVK(k VKey) (uint16, error) {
	if k >= '0' && k <= '9' || k >= 'A' && k <= 'Z' {
		return uint16(k), nil
	}
	if vk, ok := namedWindowsVK[k]; ok {
		return vk, nil
	}
	return 0, fmt.Errorf("inject: unmapped key %d", k)
}

var namedWindowsVK = map[VKey]uint16{
	VKEscape:      0x1B,
	VKEnter:       0x0D,
	VKBackspace:   0x08,
	VKTab:         0x09,
	VKSpace:       0x20,
	VKArrowUp:     0x26,
	VKArrowDown:   0x28,
	VKArrowLeft:   0x25,
	VKArrowRight:  0x27,
	VKHome:        0x24,
	VKEnd:         0x23,
	VKPageUp:      0x21,
	VKPageDown:    0x22,
	VKInsert:      0x2D,
	VKDelete:      0x2E,
	VKShiftLeft:   0xA0,
	VKShiftRight:  0xA1,
	VKControlLeft: 0xA2,
	VKControlRight: 0xA3,
	VKAltLeft:     0xA4,
	VKAltRight:    0xA5,
	VKF1:          0x70,
	VKF2:          0x71,
	VKF3:          0x72,
	VKF4:          0x73,
	VKF5:          0x74,
	VKF6:          0x75,
	VKF7:          0x76,
	VKF8:          0x77,
	VKF9:          0x78,
	VKF10:         0x79,
	VKF11:         0x7A,
	VKF12:         0x7B,
}
