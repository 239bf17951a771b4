//go:build windows

package utils

import "syscall"

func tuneSocket(fd uintptr, bufferSize int) {
	sock := syscall.Handle(fd)
	syscall.SetsockoptInt(sock, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_RCVBUF, bufferSize)
	syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_SNDBUF, bufferSize)
}
