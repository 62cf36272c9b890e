// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// SocketDir creates a directory in /tmp for Unix socket files and
// removes it when the test ends.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "shift-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(directory) })
	return directory
}

// Socketpair returns two connected Unix stream connections. Both are
// closed when the test ends.
func Socketpair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	left := fileConn(t, fds[0], "left")
	right := fileConn(t, fds[1], "right")
	return left, right
}

func fileConn(t *testing.T, fd int, name string) *net.UnixConn {
	t.Helper()
	file := os.NewFile(uintptr(fd), name)
	conn, err := net.FileConn(file)
	// FileConn dups the descriptor.
	file.Close()
	if err != nil {
		t.Fatalf("wrapping %s socket: %v", name, err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		t.Fatalf("%s socket is %T, want *net.UnixConn", name, conn)
	}
	t.Cleanup(func() { unixConn.Close() })
	return unixConn
}

// Memfd returns an anonymous shared-memory file of the given size,
// standing in for a GPU buffer or sync_file descriptor in tests.
func Memfd(t *testing.T, name string, size int64) *os.File {
	t.Helper()
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatalf("memfd_create %s: %v", name, err)
	}
	file := os.NewFile(uintptr(fd), name)
	if err := file.Truncate(size); err != nil {
		file.Close()
		t.Fatalf("sizing %s: %v", name, err)
	}
	return file
}
