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

	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
)

// rpcHeaderLen is the size of the length prefix framing every RPC message.
const rpcHeaderLen = 4

// Msg wraps one parsed RPC handed to the OnMsg callback.
type Msg struct {
	// Con is the connection the message arrived on.
	Con *Fd

	// Payload is the message returned by the codec. When the codec failed
	// it holds whatever the codec returned alongside the error, possibly nil.
	Payload interface{}

	// Buffer holds the full raw payload when FlagRPCKeepBuffer is set.
	Buffer []byte
}

// tryParseRPC reassembles one length prefixed message from the incoming
// buffer. A partial message defers a buffer grow and waits for more bytes;
// a complete one runs the codec on a shadow buffer.
func (o *mgr) tryParseRPC(con *Fd) (*Msg, error, liberr.Error) {
	buf := con.in.bytes()

	if len(buf) < rpcHeaderLen {
		return nil, nil, nil
	}

	msglen := binary.BigEndian.Uint32(buf[:rpcHeaderLen])

	if msglen == 0 || msglen > uint32(o.cfg.MaxMsgSize) {
		o.logger().Entry(loglvl.ErrorLevel, "rejecting RPC message length").
			FieldAdd("connection", con.name).
			FieldAdd("length", msglen).Log()

		return nil, nil, ErrorInsaneMsgLength.Error(nil)
	}

	need := rpcHeaderLen + int(msglen)

	if len(buf) < need {
		// defer resizing the buffer until outside the I/O handler
		_ = o.AddWorkConFifo(con, o.resizeInputBuffer, need, "resize_input_buffer")
		return nil, nil, nil
	}

	shadow := buf[rpcHeaderLen:need]

	msg := &Msg{
		Con: con,
	}

	payload, err := o.cdc.Unpack(shadow)
	msg.Payload = payload

	if err == nil {
		o.m.Lock()
		if con.flags.has(FlagRPCKeepBuffer) {
			msg.Buffer = make([]byte, len(shadow))
			copy(msg.Buffer, shadow)
		}
		o.m.Unlock()

		con.MarkConsumed(need)
	} else {
		// another message cannot be parsed safely on this stream, stop the
		// read side; the callback return decides the write side
		o.m.Lock()
		o.closeCon(con)
		o.m.Unlock()
	}

	return msg, err, nil
}

// onRPCData parses at most one message per pass; the watch re-dispatches
// while complete messages remain buffered.
func (o *mgr) onRPCData(con *Fd) error {
	msg, unpackErr, fatal := o.tryParseRPC(con)

	if fatal != nil {
		return fatal
	}

	if msg == nil {
		// message not complete yet
		return nil
	}

	if con.events == nil || con.events.OnMsg == nil {
		return ErrorCodecMissing.Error(nil)
	}

	return con.events.OnMsg(con, msg, unpackErr, con.arg)
}

// resizeInputBuffer grows the incoming buffer to hold a full pending message.
func (o *mgr) resizeInputBuffer(args CallbackArgs, arg interface{}) {
	need, ok := arg.(int)
	if !ok || args.Con == nil {
		return
	}

	if grow := need - args.Con.in.pending(); grow > 0 {
		args.Con.in.grow(grow)
	}
}

// QueueWriteMsg packs the message with the manager codec, frames it with the
// 32-bit big endian length prefix and queues it for sending.
func (o *Fd) QueueWriteMsg(msg interface{}) liberr.Error {
	p, err := o.mgr.cdc.Pack(msg)
	if err != nil {
		if e, ok := err.(liberr.Error); ok {
			return e
		}
		return ErrorWorkInvalid.Error(err)
	}

	if len(p) == 0 || len(p) > int(o.mgr.cfg.MaxMsgSize) {
		return ErrorInsaneMsgLength.Error(nil)
	}

	dat := make([]byte, rpcHeaderLen+len(p))
	binary.BigEndian.PutUint32(dat[:rpcHeaderLen], uint32(len(p)))
	copy(dat[rpcHeaderLen:], p)

	return o.mgr.queueWrite(o, dat, false)
}
