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
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	cmgr "github.com/nabbar/conmgr"
	"golang.org/x/sys/unix"
)

func TestManager_EchoRaw(t *testing.T) {
	m := testMgr(t, nil)

	events := &cmgr.Events{
		OnConnection: func(con *cmgr.Fd, arg interface{}) interface{} {
			return arg
		},
		OnData: func(con *cmgr.Fd, arg interface{}) error {
			p := con.XferInBuffer()
			return con.QueueWriteData(p)
		},
	}

	mine, peer := socketPair(t)

	if _, err := m.ProcessFd(cmgr.TypeRaw, mine, mine, events, cmgr.FlagNone, nil); err != nil {
		t.Fatalf("process fd: %v", err)
	}

	if err := m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	writeAll(t, peer, []byte("ping over the managed side"))

	got := readN(t, peer, len("ping over the managed side"), 5*time.Second)
	if !bytes.Equal(got, []byte("ping over the managed side")) {
		t.Errorf("echo mismatch: %q", got)
	}
}

func TestManager_WriteOrdering(t *testing.T) {
	m := testMgr(t, nil)

	var managed *cmgr.Fd

	events := &cmgr.Events{
		OnConnection: func(con *cmgr.Fd, arg interface{}) interface{} {
			return nil
		},
	}

	mine, peer := socketPair(t)

	con, err := m.ProcessFd(cmgr.TypeRaw, mine, mine, events, cmgr.FlagNone, nil)
	if err != nil {
		t.Fatalf("process fd: %v", err)
	}
	managed = con

	if err = m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	var want []byte
	for i := 0; i < 50; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 128)
		want = append(want, chunk...)

		if err := managed.QueueWriteData(chunk); err != nil {
			t.Fatalf("queue write %d: %v", i, err)
		}
	}

	got := readN(t, peer, len(want), 5*time.Second)
	if !bytes.Equal(got, want) {
		t.Errorf("queued writes not delivered in append order byte for byte")
	}
}

func TestManager_RPCEndToEnd(t *testing.T) {
	m := testMgr(t, nil)

	var sizes []int
	gotTwo := make(chan struct{})

	events := &cmgr.Events{
		OnMsg: func(con *cmgr.Fd, msg interface{}, unpackErr error, arg interface{}) error {
			if unpackErr != nil {
				t.Errorf("unexpected unpack error: %v", unpackErr)
				return unpackErr
			}

			p := msg.(*cmgr.Msg).Payload.([]byte)
			sizes = append(sizes, len(p))

			if len(sizes) == 2 {
				close(gotTwo)
			}
			return nil
		},
	}

	mine, peer := socketPair(t)

	if _, err := m.ProcessFd(cmgr.TypeRPC, mine, mine, events, cmgr.FlagNone, nil); err != nil {
		t.Fatalf("process fd: %v", err)
	}

	if err := m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	// two frames of 100 and 7 payload bytes (104 + 11 bytes on the wire),
	// delivered as writes of 1, 3, 102 and 9 bytes
	stream := append(rpcFrame(make([]byte, 100)), rpcFrame(make([]byte, 7))...)

	for _, n := range []int{1, 3, 102, 9} {
		writeAll(t, peer, stream[:n])
		stream = stream[n:]
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-gotTwo:
	case <-time.After(5 * time.Second):
		t.Fatalf("codec callbacks: got %d, want 2", len(sizes))
	}

	if sizes[0] != 100 || sizes[1] != 7 {
		t.Errorf("payload sizes = %v, want [100 7]", sizes)
	}
}

func TestManager_ListenAndConnect(t *testing.T) {
	m := testMgr(t, nil)

	var (
		accepted  atomic.Int32
		connected atomic.Int32
	)

	srvEvents := &cmgr.Events{
		OnConnection: func(con *cmgr.Fd, arg interface{}) interface{} {
			accepted.Add(1)
			return nil
		},
	}

	lst, err := m.CreateListenSocket(cmgr.TypeRaw, "tcp", "127.0.0.1:0", srvEvents, cmgr.FlagNone, nil)
	if err != nil {
		t.Fatalf("create listen socket: %v", err)
	}

	sa, e := unix.Getsockname(lst.InputFd())
	if e != nil {
		t.Fatalf("getsockname: %v", e)
	}

	port := sa.(*unix.SockaddrInet4).Port

	if err = m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	cliEvents := &cmgr.Events{
		OnConnection: func(con *cmgr.Fd, arg interface{}) interface{} {
			connected.Add(1)
			return nil
		},
	}

	addr := "127.0.0.1:" + strconv.Itoa(port)
	if _, err = m.CreateConnectSocket(cmgr.TypeRaw, "tcp", addr, cliEvents, cmgr.FlagNone, nil); err != nil {
		t.Fatalf("create connect socket: %v", err)
	}

	waitFor(t, 5*time.Second, "both sides connected", func() bool {
		return accepted.Load() == 1 && connected.Load() == 1
	})
}

func TestManager_WriteCompleteWork(t *testing.T) {
	m := testMgr(t, nil)

	mine, peer := socketPair(t)

	con, err := m.ProcessFd(cmgr.TypeRaw, mine, mine, &cmgr.Events{}, cmgr.FlagNone, nil)
	if err != nil {
		t.Fatalf("process fd: %v", err)
	}

	if err = m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB}, 4096)

	if err = con.QueueWriteData(payload); err != nil {
		t.Fatalf("queue write: %v", err)
	}

	drained := make(chan struct{})

	if err = m.AddWorkConWriteComplete(con, func(args cmgr.CallbackArgs, arg interface{}) {
		close(drained)
	}, nil, "write_complete"); err != nil {
		t.Fatalf("add write complete work: %v", err)
	}

	got := readN(t, peer, len(payload), 5*time.Second)
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatalf("write complete work never ran")
	}
}

func TestManager_QuiesceParksWork(t *testing.T) {
	m := testMgr(t, nil)

	if err := m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := m.Quiesce(); err != nil {
		t.Fatalf("quiesce: %v", err)
	}

	var ran atomic.Int32

	if err := m.AddWorkFifo(func(args cmgr.CallbackArgs, arg interface{}) {
		ran.Add(1)
	}, nil, "quiesced_work"); err != nil {
		t.Fatalf("add work: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	if got := ran.Load(); got != 0 {
		t.Fatalf("work ran %d times while quiesced", got)
	}

	m.Unquiesce()

	waitFor(t, 5*time.Second, "parked work to run", func() bool {
		return ran.Load() == 1
	})
}

func TestManager_RefPinsConnection(t *testing.T) {
	m := testMgr(t, nil)

	mine, _ := socketPair(t)

	con, err := m.ProcessFd(cmgr.TypeRaw, mine, mine, &cmgr.Events{}, cmgr.FlagNone, nil)
	if err != nil {
		t.Fatalf("process fd: %v", err)
	}

	ref := con.NewRef()
	name := con.Name()

	if err = m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	con.QueueClose()
	time.Sleep(100 * time.Millisecond)

	// the handle pins the connection: the name stays readable
	if got := ref.Con().Name(); got != name {
		t.Errorf("pinned connection name = %q, want %q", got, name)
	}

	ref.Free()

	waitFor(t, 5*time.Second, "connection release", func() bool {
		return m.Connections() == 0
	})
}

func TestManager_SignalWork(t *testing.T) {
	m := testMgr(t, nil)

	var ran atomic.Int32

	if err := m.AddWorkSignal(int(unix.SIGUSR1), func(args cmgr.CallbackArgs, arg interface{}) {
		ran.Add(1)
	}, nil, "usr1_work"); err != nil {
		t.Fatalf("add signal work: %v", err)
	}

	if err := m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	// each delivery runs the callback once
	for i := 0; i < 3; i++ {
		if err := unix.Kill(unix.Getpid(), unix.SIGUSR1); err != nil {
			t.Fatalf("kill: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, "three signal callbacks", func() bool {
		return ran.Load() == 3
	})

	if got := ran.Load(); got != 3 {
		t.Errorf("signal callback ran %d times, want 3", got)
	}
}
