//go:build windows

// memory_windows.go - Windows 平台可执行内存分配
//
// 使用 VirtualAlloc 分配读写内存，写入代码后 VirtualProtect 为读与执行

package jit

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const pageSize = 4096

// allocExecutable 分配可执行内存并写入代码（Windows）
func allocExecutable(code []byte) ([]byte, error) {
	size := pageAlign(len(code), pageSize)
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	copy(mem, code)

	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(size), windows.PAGE_EXECUTE_READ, &old); err != nil {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return nil, err
	}
	return mem, nil
}

// freeExecutable 释放可执行内存（Windows）
func freeExecutable(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return windows.VirtualFree(uintptr(unsafe.Pointer(&mem[0])), 0, windows.MEM_RELEASE)
}
