//go:build darwin || linux

package hook

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	protRX  = unix.PROT_READ | unix.PROT_EXEC
	protRW  = unix.PROT_READ | unix.PROT_WRITE
	protRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC

	// a rel32 displacement reaches ±2 GiB; keep a page of slack on each side
	rel32Reach = 1<<31 - 1<<16
	// distance between two mmap hints while searching for a near page
	nearStep = 1 << 24
)

var pageSize = uintptr(unix.Getpagesize())

func PageStart(p uintptr) uintptr {
	return p &^ (pageSize - 1)
}

// MprotectCrossPage applies prot to every page touched by [addr, addr+length).
func MprotectCrossPage(addr uintptr, length int, prot int) error {
	start := PageStart(addr)
	end := addr + uintptr(length)
	region := RawMemoryAccess(start, int(((end-start)+pageSize-1)/pageSize*pageSize))
	if err := unix.Mprotect(region, prot); err != nil {
		return fmt.Errorf("mprotect %#x+%d: %w", start, len(region), err)
	}
	return nil
}

// CopyToLocation writes data over code at location, leaving the pages
// readable and executable again.
func CopyToLocation(location uintptr, data []byte) error {
	if err := MprotectCrossPage(location, len(data), protRWX); err != nil {
		return err
	}
	copy(RawMemoryAccess(location, len(data)), data)
	return MprotectCrossPage(location, len(data), protRX)
}

func within(a, b uintptr) bool {
	if a > b {
		a, b = b, a
	}
	return b-a < rel32Reach
}

func mmapAt(hint uintptr) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), pageSize, protRW, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, err
	}
	return uintptr(p), nil
}

// allocPage maps one writable page for trampoline code. It first looks for a
// page within rel32 reach of near; reachable tells whether it found one.
//
//go:nocheckptr
func allocPage(near uintptr) (page uintptr, reachable bool, err error) {
	if near != 0 {
		base := PageStart(near)
		for i := uintptr(1); i*nearStep < rel32Reach; i++ {
			for _, hint := range []uintptr{base - i*nearStep, base + i*nearStep} {
				if hint > base+i*nearStep || hint < pageSize {
					continue
				}
				p, err := mmapAt(hint)
				if err != nil {
					continue
				}
				if within(p, near) {
					return p, true, nil
				}
				_ = freePage(p)
			}
		}
	}

	p, err := mmapAt(0)
	if err != nil {
		return 0, false, fmt.Errorf("mmap trampoline: %w", err)
	}
	return p, near != 0 && within(p, near), nil
}

// sealPage makes a filled trampoline page executable and read-only.
func sealPage(page uintptr) error {
	if err := MprotectCrossPage(page, int(pageSize), protRX); err != nil {
		return fmt.Errorf("seal trampoline: %w", err)
	}
	return nil
}

//go:nocheckptr
func freePage(page uintptr) error {
	return unix.MunmapPtr(unsafe.Pointer(page), pageSize)
}
