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
	"time"

	cmtls "github.com/nabbar/conmgr/conntls"
	cmwrk "github.com/nabbar/conmgr/work"
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

// fingerprintCon inspects the first buffered bytes of a dual listener
// connection and routes it to TLS or plaintext RPC. Returns true when the
// caller must stop processing this pass.
func (o *mgr) fingerprintCon(con *Fd) bool {
	buf := con.in.bytes()

	switch cmtls.Fingerprint(buf) {
	case cmtls.MatchNeedMore:
		o.m.Lock()
		if con.in.pending() > 0 {
			con.flags |= flagOnDataTried
		}
		o.m.Unlock()
		return true

	case cmtls.MatchTLS:
		o.logger().Entry(loglvl.DebugLevel, "TLS handshake fingerprint matched").
			FieldAdd("connection", con.name).Log()

		pre := con.XferInBuffer()
		con.in.reset()

		if err := o.startTLS(con, cmtls.RoleServer, pre); err != nil {
			o.m.Lock()
			o.recordError(err)
			o.closeCon(con)
			o.m.Unlock()
		}
		return true
	}

	o.logger().Entry(loglvl.DebugLevel, "TLS not detected on connection").
		FieldAdd("connection", con.name).Log()

	o.m.Lock()
	required := con.flags.has(FlagTLSRequired)

	if required {
		o.m.Unlock()
		o.tlsRequiredReply(con)
		return true
	}

	// plaintext peer on a dual listener: switch to RPC framing
	con.typ = TypeRPC
	con.flags &^= FlagTLSDetect
	o.m.Unlock()

	return false
}

// startTLS creates the session for the given role and queues the handshake
// on the connection's work list.
func (o *mgr) startTLS(con *Fd, role cmtls.Role, preface []byte) liberr.Error {
	o.m.Lock()
	prov := o.prov
	cfg := o.tlsCfg
	inFd := con.inFd
	outFd := con.outFd
	o.m.Unlock()

	if prov == nil || cfg == nil {
		return ErrorTLSProvider.Error(nil)
	}

	sess, err := prov.New(role, inFd, outFd, preface, cfg, con.addr)
	if err != nil {
		return err
	}

	o.m.Lock()
	con.tls = sess
	con.tlsRole = role
	o.m.Unlock()

	return o.AddWorkConFifo(con, o.handleTLSHandshake, nil, "tls_handshake")
}

// handleTLSHandshake runs the blocking handshake with the descriptors flipped
// to blocking, restoring nonblocking on every exit path.
func (o *mgr) handleTLSHandshake(args CallbackArgs, _ interface{}) {
	con := args.Con

	if args.Status == cmwrk.StatusCancelled {
		return
	}

	o.m.Lock()
	sess := con.tls
	inFd := con.inFd
	outFd := con.outFd
	o.m.Unlock()

	if sess == nil || inFd < 0 || outFd < 0 {
		return
	}

	_ = unix.SetNonblock(inFd, false)
	if outFd != inFd {
		_ = unix.SetNonblock(outFd, false)
	}

	defer func() {
		_ = unix.SetNonblock(inFd, true)
		if outFd != inFd {
			_ = unix.SetNonblock(outFd, true)
		}
	}()

	if err := sess.Handshake(); err != nil {
		o.logger().Entry(loglvl.ErrorLevel, "TLS handshake failed").
			FieldAdd("connection", con.name).
			FieldAdd("role", con.tlsRole.String()).
			ErrorAdd(true, err).Log()

		o.tlsWaitClose(con, sess)
		return
	}

	o.m.Lock()
	con.flags |= flagIsTLSConnected

	if con.flags.has(FlagTLSDetect) {
		// dual listener stream continues as RPC inside the TLS channel
		con.typ = TypeRPC
		con.flags &^= FlagTLSDetect
	}

	o.wakeWatchLocked()
	o.m.Unlock()

	o.logger().Entry(loglvl.InfoLevel, "TLS handshake completed").
		FieldAdd("connection", con.name).
		FieldAdd("role", con.tlsRole.String()).Log()
}

// tlsWaitClose schedules the connection teardown after the blinding delay
// reported by the session, defeating handshake timing side channels. The
// connection stops being scheduled meanwhile.
func (o *mgr) tlsWaitClose(con *Fd, sess cmtls.Session) {
	dly := sess.BlindingDelay()

	o.m.Lock()
	con.flags |= FlagQuiesce
	o.m.Unlock()

	begin, err := cmwrk.CalcTimeDelay(int64(dly/time.Second), int64(dly%time.Second))
	if err != nil {
		begin, _ = cmwrk.CalcTimeDelay(0, 0)
	}

	_ = o.AddWork(nil, func(args CallbackArgs, _ interface{}) {
		o.m.Lock()
		con.flags &^= FlagQuiesce
		o.closeConOutput(con)
		o.closeCon(con)
		o.m.Unlock()
	}, nil, "tls_wait_close", cmwrk.Control{
		Schedule:  cmwrk.SchedFifo,
		Depend:    cmwrk.DependTimeDelay,
		TimeBegin: begin,
	})
}

// tlsRequiredReply sends a single best effort failure reply to a peer that
// did not offer TLS on a connection requiring it, then closes.
func (o *mgr) tlsRequiredReply(con *Fd) {
	o.m.Lock()
	o.recordError(ErrorTLSRequired.Error(nil))
	o.m.Unlock()

	if p, err := o.cdc.Pack(ErrorTLSRequired.Error(nil).Error()); err == nil && len(p) > 0 {
		dat := make([]byte, rpcHeaderLen+len(p))
		binary.BigEndian.PutUint32(dat[:rpcHeaderLen], uint32(len(p)))
		copy(dat[rpcHeaderLen:], p)
		_ = o.mgrQueueWriteRaw(con, dat)
	}

	o.m.Lock()
	o.closeCon(con)
	o.m.Unlock()
}

func (o *mgr) mgrQueueWriteRaw(con *Fd, dat []byte) liberr.Error {
	return o.queueWrite(con, dat, false)
}
