//go:build !windows

// memory_unix.go - Unix/Linux/macOS 平台可执行内存分配
//
// 使用 mmap 分配读写内存，写入代码后 mprotect 为读与执行

package jit

import (
	"golang.org/x/sys/unix"
)

// allocExecutable 分配可执行内存并写入代码（Unix）
func allocExecutable(code []byte) ([]byte, error) {
	size := pageAlign(len(code), unix.Getpagesize())
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, err
	}
	return mem, nil
}

// freeExecutable 释放可执行内存（Unix）
func freeExecutable(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}
