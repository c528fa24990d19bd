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

package conmgr

import (
	"encoding/binary"
	"strings"
	"testing"

	cmcdc "github.com/nabbar/conmgr/codec"
	cmcfg "github.com/nabbar/conmgr/concfg"
	cmevt "github.com/nabbar/conmgr/events"
	cmpol "github.com/nabbar/conmgr/polling"
	cmwrk "github.com/nabbar/conmgr/work"
)

// frameTestMgr builds a minimal manager usable by the framing layer without
// running the watch loop.
func frameTestMgr(t *testing.T) *mgr {
	t.Helper()

	pol, err := cmpol.New(cmpol.ModePoll, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	t.Cleanup(func() {
		_ = pol.Close()
	})

	return &mgr{
		cfg:   cmcfg.DefaultConfig(),
		pol:   pol,
		fdcon: make(map[int]*Fd),
		cdc:   cmcdc.Get(cmcdc.NamePassthrough),

		evtWatchSleep:   cmevt.New("watch_sleep"),
		evtWatchReturn:  cmevt.New("watch_return"),
		evtWorkerSleep:  cmevt.New("worker_sleep"),
		evtWorkerReturn: cmevt.New("worker_return"),
		evtQuiesceOn:    cmevt.New("on_start_quiesced"),
		evtQuiesceOff:   cmevt.New("on_stop_quiesced"),
	}
}

func feed(con *Fd, p []byte) {
	dst := con.in.writable(len(p))
	copy(dst, p)
	con.in.commit(len(p))
}

func frame(payload []byte) []byte {
	res := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(res[:4], uint32(len(payload)))
	copy(res[4:], payload)
	return res
}

// dispatch runs framing passes the way the watch re-dispatches: while bytes
// are pending and the parser still makes progress.
func dispatch(o *mgr, con *Fd) {
	for {
		if con.in.pending() == 0 || con.flags.has(flagOnDataTried) || con.flags.has(flagReadEOF) {
			return
		}

		o.wrapOnData(CallbackArgs{Con: con, Status: cmwrk.StatusRun}, nil)
	}
}

func TestRPCFraming_AcrossChunks(t *testing.T) {
	o := frameTestMgr(t)

	var sizes []int

	con := &Fd{
		mgr:  o,
		typ:  TypeRPC,
		name: "[test-rpc,fd=0]",
		inFd: 0,
		events: &Events{
			OnMsg: func(c *Fd, msg interface{}, unpackErr error, arg interface{}) error {
				if unpackErr != nil {
					t.Fatalf("unexpected unpack error: %v", unpackErr)
				}

				m, ok := msg.(*Msg)
				if !ok {
					t.Fatalf("unexpected message type %T", msg)
				}

				p, ok := m.Payload.([]byte)
				if !ok {
					t.Fatalf("unexpected payload type %T", m.Payload)
				}

				sizes = append(sizes, len(p))
				return nil
			},
		},
	}
	con.flags |= flagIsConnected

	// two frames of 100 and 7 payload bytes (104 + 11 bytes on the wire)
	// delivered as reads of 1, 3, 102 and 9 bytes
	stream := append(frame(make([]byte, 100)), frame(make([]byte, 7))...)

	for _, n := range []int{1, 3, 102, 9} {
		feed(con, stream[:n])
		stream = stream[n:]
		con.flags &^= flagOnDataTried
		dispatch(o, con)
	}

	if len(stream) != 0 {
		t.Fatalf("test stream not fully delivered, %d bytes left", len(stream))
	}

	if len(sizes) != 2 {
		t.Fatalf("codec invoked %d times, want 2", len(sizes))
	}
	if sizes[0] != 100 || sizes[1] != 7 {
		t.Errorf("payload sizes = %v, want [100 7]", sizes)
	}

	if con.in.pending() != 0 {
		t.Errorf("incoming buffer not empty: %d bytes pending", con.in.pending())
	}
}

func TestRPCFraming_ManyFramesAnyChunking(t *testing.T) {
	o := frameTestMgr(t)

	var sizes []int

	con := &Fd{
		mgr:  o,
		typ:  TypeRPC,
		name: "[test-rpc,fd=0]",
		inFd: 0,
		events: &Events{
			OnMsg: func(c *Fd, msg interface{}, unpackErr error, arg interface{}) error {
				sizes = append(sizes, len(msg.(*Msg).Payload.([]byte)))
				return nil
			},
		},
	}
	con.flags |= flagIsConnected

	want := []int{1, 17, 512, 3, 64}

	var stream []byte
	for _, n := range want {
		stream = append(stream, frame(make([]byte, n))...)
	}

	// deliver byte by byte: framing must stay exact regardless of chunking
	for len(stream) > 0 {
		feed(con, stream[:1])
		stream = stream[1:]
		con.flags &^= flagOnDataTried
		dispatch(o, con)
	}

	if len(sizes) != len(want) {
		t.Fatalf("codec invoked %d times, want %d", len(sizes), len(want))
	}

	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("frame %d size = %d, want %d", i, sizes[i], want[i])
		}
	}
}

func TestRPCFraming_InsaneLength(t *testing.T) {
	o := frameTestMgr(t)

	con := &Fd{
		mgr:  o,
		typ:  TypeRPC,
		name: "[test-rpc,fd=0]",
		inFd: 0,
		events: &Events{
			OnMsg: func(c *Fd, msg interface{}, unpackErr error, arg interface{}) error {
				t.Fatalf("OnMsg must not run for an insane length prefix")
				return nil
			},
		},
	}
	con.flags |= flagIsConnected

	var pfx [4]byte
	binary.BigEndian.PutUint32(pfx[:], uint32(o.cfg.MaxMsgSize)+1)
	feed(con, pfx[:])

	o.wrapOnData(CallbackArgs{Con: con, Status: cmwrk.StatusRun}, nil)

	if err := o.GetError(); err == nil {
		t.Fatalf("expected manager error after insane length prefix")
	} else if !err.IsCode(ErrorInsaneMsgLength) {
		t.Errorf("manager error = %v, want insane msg length", err)
	} else if !strings.Contains(err.Error(), "insane msg length") {
		t.Errorf("manager error message = %q, want it to name the insane msg length", err.Error())
	}

	if !con.flags.has(flagReadEOF) {
		t.Errorf("connection read side not closed after insane length prefix")
	}

	if con.in.pending() != 0 {
		t.Errorf("pending input not purged after framing failure")
	}
}

func TestRPCFraming_ZeroLength(t *testing.T) {
	o := frameTestMgr(t)

	con := &Fd{
		mgr:  o,
		typ:  TypeRPC,
		name: "[test-rpc,fd=0]",
		inFd: 0,
		events: &Events{
			OnMsg: func(c *Fd, msg interface{}, unpackErr error, arg interface{}) error {
				t.Fatalf("OnMsg must not run for a zero length prefix")
				return nil
			},
		},
	}
	con.flags |= flagIsConnected

	feed(con, []byte{0, 0, 0, 0})
	o.wrapOnData(CallbackArgs{Con: con, Status: cmwrk.StatusRun}, nil)

	if err := o.GetError(); err == nil {
		t.Fatalf("expected manager error after zero length prefix")
	} else if !err.IsCode(ErrorInsaneMsgLength) {
		t.Errorf("manager error = %v, want insane msg length", err)
	}
}
