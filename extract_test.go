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
	"bytes"
	"testing"
	"time"

	cmgr "github.com/nabbar/conmgr"
	"golang.org/x/sys/unix"
)

func TestManager_ExtractFd(t *testing.T) {
	m := testMgr(t, nil)

	mine, peer := socketPair(t)

	con, err := m.ProcessFd(cmgr.TypeRaw, mine, mine, &cmgr.Events{}, cmgr.FlagNone, nil)
	if err != nil {
		t.Fatalf("process fd: %v", err)
	}

	if err = m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	type got struct {
		in  int
		out int
	}

	res := make(chan got, 1)

	if err = con.QueueExtractFd(func(inputFd, outputFd int, arg interface{}) {
		res <- got{in: inputFd, out: outputFd}
	}, nil); err != nil {
		t.Fatalf("queue extract: %v", err)
	}

	var fds got

	select {
	case fds = <-res:
	case <-time.After(5 * time.Second):
		t.Fatalf("extract callback never ran")
	}

	if fds.in < 0 {
		t.Fatalf("extracted input fd is invalid")
	}

	t.Cleanup(func() {
		_ = unix.Close(fds.in)
	})

	// ownership transferred: the descriptor must still work outside the
	// manager
	writeAll(t, fds.out, []byte("after extract"))

	if got := readN(t, peer, len("after extract"), 5*time.Second); !bytes.Equal(got, []byte("after extract")) {
		t.Errorf("extracted descriptor write mismatch: %q", got)
	}

	// asking twice is refused
	if err = con.QueueExtractFd(func(int, int, interface{}) {}, nil); err == nil {
		t.Errorf("second extract request must fail")
	}
}
