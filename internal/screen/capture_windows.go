//go:build windows

package screen

import (
	"context"
	"image"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")

	procIsIconic           = user32.NewProc("IsIconic")
	procGetWindowRect      = user32.NewProc("GetWindowRect")
	procGetWindowDC        = user32.NewProc("GetWindowDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procPrintWindow        = user32.NewProc("PrintWindow")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
	procGdiFlush           = gdi32.NewProc("GdiFlush")
)

const (
	biRGB                   = 0
	pwRenderFullContent     = 0x2
	maxTitleLen             = 512
	dibRGBColors            = 0
	bitmapInfoHeaderBitSize = 32
)

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	Colors [1]uint32
}

type rect struct {
	Left, Top, Right, Bottom int32
}

// gdiSource enumerates top-level windows and renders them with PrintWindow into a DIB.
type gdiSource struct{}

// NewSource returns the Win32 window backend.
func NewSource() Source { return gdiSource{} }

// CheckTools reports which required helper binaries are missing.
func CheckTools() []string { return nil }

// enumerate returns visible titles in z-order and the first handle seen for each.
func (gdiSource) enumerate() ([]string, map[string]windows.HWND) {
	var titles []string
	found := make(map[string]windows.HWND)
	cb := windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		if !windows.IsWindowVisible(hwnd) {
			return 1
		}
		if iconic, _, _ := procIsIconic.Call(uintptr(hwnd)); iconic != 0 {
			return 1
		}
		buf := make([]uint16, maxTitleLen)
		n, err := windows.GetWindowText(hwnd, &buf[0], maxTitleLen)
		if err != nil || n == 0 {
			return 1
		}
		title := windows.UTF16ToString(buf[:n])
		titles = append(titles, title)
		if _, ok := found[title]; !ok {
			found[title] = hwnd
		}
		return 1
	})
	_ = windows.EnumWindows(cb, nil)
	return dedupe(titles), found
}

func (s gdiSource) Windows(ctx context.Context) ([]string, error) {
	titles, _ := s.enumerate()
	return titles, nil
}

func (s gdiSource) Grab(ctx context.Context, title string) (image.Image, error) {
	_, found := s.enumerate()
	hwnd, ok := found[title]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeWindowNotFound, "window %q not found", title)
	}

	var r rect
	if ret, _, err := procGetWindowRect.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&r))); ret == 0 {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "GetWindowRect")
	}
	width, height := int(r.Right-r.Left), int(r.Bottom-r.Top)
	if width <= 0 || height <= 0 {
		return nil, apperrors.Newf(apperrors.CodeCaptureFailed, "window %q has no area", title)
	}

	hdc, _, _ := procGetWindowDC.Call(uintptr(hwnd))
	if hdc == 0 {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "GetWindowDC failed")
	}
	defer procReleaseDC.Call(uintptr(hwnd), hdc)

	memDC, _, _ := procCreateCompatibleDC.Call(hdc)
	if memDC == 0 {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "CreateCompatibleDC failed")
	}
	defer procDeleteDC.Call(memDC)

	// Negative height gives a top-down DIB.
	bi := bitmapInfo{Header: bitmapInfoHeader{
		Size:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		Width:       int32(width),
		Height:      -int32(height),
		Planes:      1,
		BitCount:    bitmapInfoHeaderBitSize,
		Compression: biRGB,
	}}
	var bits uintptr
	bitmap, _, _ := procCreateDIBSection.Call(hdc, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bits)), 0, 0)
	if bitmap == 0 || bits == 0 {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "CreateDIBSection failed")
	}
	defer procDeleteObject.Call(bitmap)

	old, _, _ := procSelectObject.Call(memDC, bitmap)
	defer procSelectObject.Call(memDC, old)

	if ret, _, err := procPrintWindow.Call(uintptr(hwnd), memDC, pwRenderFullContent); ret == 0 {
		return nil, apperrors.Wrap(errOrNil(err), apperrors.CodeCaptureFailed, "PrintWindow")
	}
	procGdiFlush.Call()

	data := unsafe.Slice((*byte)(unsafe.Pointer(bits)), width*height*4)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		o := i * 4
		img.Pix[o+0] = data[o+2] // BGRA -> RGBA
		img.Pix[o+1] = data[o+1]
		img.Pix[o+2] = data[o+0]
		img.Pix[o+3] = 255
	}
	return img, nil
}

// errOrNil drops the "operation completed successfully" errno Call returns on success paths.
func errOrNil(err error) error {
	if errno, ok := err.(syscall.Errno); ok && errno == 0 {
		return nil
	}
	return err
}
