/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

//go:build linux

package conmgr_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	cmgr "github.com/nabbar/conmgr"
	cmcfg "github.com/nabbar/conmgr/concfg"
	"golang.org/x/sys/unix"
)

func testMgr(t *testing.T, mod func(*cmcfg.Config)) cmgr.Manager {
	t.Helper()

	cfg := cmcfg.DefaultConfig()
	cfg.Threads = 4

	if mod != nil {
		mod(&cfg)
	}

	m, err := cmgr.New(context.Background(), cfg, cmgr.Callbacks{}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	t.Cleanup(m.Fini)

	return m
}

// socketPair returns a connected pair: the first descriptor is meant for the
// manager (which takes ownership), the second stays with the test as peer.
func socketPair(t *testing.T) (int, int) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	t.Cleanup(func() {
		_ = unix.Close(fds[1])
	})

	return fds[0], fds[1]
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	end := time.Now().Add(timeout)

	for {
		if cond() {
			return
		}

		if time.Now().After(end) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(5 * time.Millisecond)
	}
}

// readN reads exactly n bytes from the peer descriptor within the timeout.
func readN(t *testing.T, fd, n int, timeout time.Duration) []byte {
	t.Helper()

	res := make([]byte, 0, n)
	end := time.Now().Add(timeout)

	for len(res) < n {
		left := time.Until(end)
		if left <= 0 {
			t.Fatalf("timed out reading %d bytes, got %d", n, len(res))
		}

		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		if _, err := unix.Poll(pfd, int(left/time.Millisecond)+1); err != nil && err != unix.EINTR {
			t.Fatalf("poll: %v", err)
		}

		buf := make([]byte, n-len(res))
		c, err := unix.Read(fd, buf)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		} else if err != nil {
			t.Fatalf("read: %v", err)
		} else if c == 0 {
			t.Fatalf("unexpected EOF after %d of %d bytes", len(res), n)
		}

		res = append(res, buf[:c]...)
	}

	return res
}

func writeAll(t *testing.T, fd int, p []byte) {
	t.Helper()

	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		} else if err != nil {
			t.Fatalf("write: %v", err)
		}

		p = p[n:]
	}
}

func rpcFrame(payload []byte) []byte {
	res := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(res[:4], uint32(len(payload)))
	copy(res[4:], payload)
	return res
}
