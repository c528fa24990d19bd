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
	"fmt"
	"time"

	cmpol "github.com/nabbar/conmgr/polling"
	cmtls "github.com/nabbar/conmgr/conntls"
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

func (o *mgr) ProcessFd(t ConType, inputFd, outputFd int, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error) {
	switch t {
	case TypeNone, TypeRaw, TypeRPC:
	default:
		return nil, ErrorConTypeInvalid.Error(nil)
	}

	if inputFd < 0 && outputFd < 0 {
		return nil, ErrorFdInvalid.Error(nil)
	}

	o.m.Lock()

	if o.finished {
		o.m.Unlock()
		return nil, ErrorManagerClosed.Error(nil)
	} else if o.shutdown {
		o.m.Unlock()
		return nil, ErrorManagerShutdown.Error(nil)
	}

	con, err := o.addConLocked(t, inputFd, outputFd, events, flags, arg, "")
	if err != nil {
		o.m.Unlock()
		return nil, err
	}

	con.flags |= flagIsConnected
	o.m.Unlock()

	if err = o.startConTLS(con); err != nil {
		o.m.Lock()
		o.closeCon(con)
		o.m.Unlock()
		return nil, err
	}

	o.queueOnConnection(con)

	return con, nil
}

func (o *mgr) ProcessFdListen(fd int, t ConType, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error) {
	switch t {
	case TypeNone, TypeRaw, TypeRPC:
	default:
		return nil, ErrorConTypeInvalid.Error(nil)
	}

	if fd < 0 {
		return nil, ErrorFdInvalid.Error(nil)
	}

	o.m.Lock()

	if o.finished {
		o.m.Unlock()
		return nil, ErrorManagerClosed.Error(nil)
	} else if o.shutdown {
		o.m.Unlock()
		return nil, ErrorManagerShutdown.Error(nil)
	}

	con, err := o.addConLocked(t, fd, -1, events, flags|flagIsListen, arg, "listen")
	o.m.Unlock()

	if err != nil {
		return nil, err
	}

	if events != nil && events.OnListenConnect != nil {
		_ = o.AddWorkConFifo(con, func(args CallbackArgs, a interface{}) {
			args.Con.arg = args.Con.events.OnListenConnect(args.Con, a)
		}, arg, "on_listen_connect")
	}

	return con, nil
}

// addConLocked allocates the connection, classifies the kernel object kind,
// flips descriptors nonblocking, registers them with the poller and links
// the connection into the proper list. Caller holds the manager mutex.
func (o *mgr) addConLocked(t ConType, inputFd, outputFd int, events *Events, flags Flags, arg interface{}, label string) (*Fd, liberr.Error) {
	con := &Fd{
		mgr:    o,
		typ:    t,
		inFd:   inputFd,
		outFd:  outputFd,
		flags:  flags,
		arg:    arg,
		events: events,
		regIn:  cmpol.InterestInvalid,
		regOut: cmpol.InterestInvalid,
		mss:    -1,
	}

	probe := inputFd
	if probe < 0 {
		probe = outputFd
	}

	var st unix.Stat_t
	if err := unix.Fstat(probe, &st); err != nil {
		return nil, ErrorFdInvalid.Error(err)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFSOCK:
		con.flags |= flagIsSocket
	case unix.S_IFIFO:
		con.flags |= flagIsFifo
	case unix.S_IFCHR:
		con.flags |= flagIsChr
	}

	if con.flags.has(flagIsSocket) {
		if sa, err := unix.Getpeername(probe); err == nil {
			con.addr = sockaddrString(sa)
		}

		if con.flags.has(FlagTCPNoDelay) {
			_ = unix.SetsockoptInt(probe, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		}
	}

	if label == "" {
		label = con.addr
	}
	if label == "" {
		label = con.typ.String()
	}

	con.name = fmt.Sprintf("[%s,fd=%d]", label, probe)

	if inputFd >= 0 {
		_ = unix.SetNonblock(inputFd, true)
	}
	if outputFd >= 0 && outputFd != inputFd {
		_ = unix.SetNonblock(outputFd, true)
	}

	now := time.Now()
	con.lastRead = now
	con.lastWrite = now
	con.lastConnect = now

	first := cmpol.InterestNone
	if con.flags.has(flagIsListen) {
		first = cmpol.InterestListen
	}

	if inputFd >= 0 {
		if err := o.pol.Link(inputFd, first, con.name); err != nil {
			return nil, err
		}
		con.regIn = first
		o.fdcon[inputFd] = con
	}

	if outputFd >= 0 && outputFd != inputFd {
		if err := o.pol.Link(outputFd, cmpol.InterestNone, con.name); err != nil {
			if inputFd >= 0 {
				_ = o.pol.Unlink(inputFd, con.name)
				delete(o.fdcon, inputFd)
			}
			return nil, err
		}
		con.regOut = cmpol.InterestNone
		o.fdcon[outputFd] = con
	}

	if con.flags.has(flagIsListen) {
		// a listener never connects; mark it so the close path can drain it
		// like any other connection at shutdown
		con.flags |= flagIsConnected
		o.listen = append(o.listen, con)
	} else {
		o.cons = append(o.cons, con)
	}

	o.logger().Entry(loglvl.DebugLevel, "connection registered").
		FieldAdd("connection", con.name).
		FieldAdd("type", con.typ.String()).Log()

	o.wakeWatchLocked()

	return con, nil
}

// startConTLS queues the explicit TLS handshake on connections registered
// with a TLS role and no wire detection.
func (o *mgr) startConTLS(con *Fd) liberr.Error {
	o.m.Lock()
	explicit := !con.flags.has(FlagTLSDetect) &&
		(con.flags.has(FlagTLSServer) || con.flags.has(FlagTLSClient))
	role := cmtls.RoleServer
	if con.flags.has(FlagTLSClient) {
		role = cmtls.RoleClient
	}
	o.m.Unlock()

	if !explicit {
		return nil
	}

	return o.startTLS(con, role, nil)
}

// queueOnConnection schedules the first host callback of a connection; its
// return value becomes the argument passed to subsequent callbacks.
func (o *mgr) queueOnConnection(con *Fd) {
	o.m.Lock()
	if con.onConnQueued {
		o.m.Unlock()
		return
	}
	con.onConnQueued = true
	o.m.Unlock()

	if con.events == nil || con.events.OnConnection == nil {
		return
	}

	_ = o.AddWorkConFifo(con, func(args CallbackArgs, a interface{}) {
		ret := args.Con.events.OnConnection(args.Con, a)

		o.m.Lock()
		args.Con.arg = ret
		o.m.Unlock()
	}, con.arg, "on_connection")
}

// closeCon stops the read side of a connection: reads stop, queued writes
// keep draining until empty. Caller holds the manager mutex.
func (o *mgr) closeCon(con *Fd) {
	if con.flags.has(flagReadEOF) {
		o.wakeWatchLocked()
		return
	}

	con.flags |= flagReadEOF
	con.flags &^= flagCanRead
	o.wakeWatchLocked()
}

// closeConOutput drops every queued write so the connection can finish
// without draining. Caller holds the manager mutex.
func (o *mgr) closeConOutput(con *Fd) {
	con.out = nil
}

// closeInputLocked closes the input descriptor once the read side finished.
// Caller holds the manager mutex.
func (o *mgr) closeInputLocked(con *Fd) {
	if con.inFd < 0 {
		return
	}

	_ = o.pol.Unlink(con.inFd, con.name)
	delete(o.fdcon, con.inFd)
	con.regIn = cmpol.InterestInvalid

	if err := unix.Close(con.inFd); err != nil {
		o.logger().Entry(loglvl.DebugLevel, "unable to close input fd").
			FieldAdd("connection", con.name).
			ErrorAdd(true, err).Log()
	}

	if con.inFd == con.outFd {
		con.outFd = -1
		con.regOut = cmpol.InterestInvalid
	}

	con.inFd = -1
}

// closeOutputLocked closes the output descriptor. Caller holds the mutex.
func (o *mgr) closeOutputLocked(con *Fd) {
	if con.outFd < 0 {
		return
	}

	_ = o.pol.Unlink(con.outFd, con.name)
	delete(o.fdcon, con.outFd)
	con.regOut = cmpol.InterestInvalid

	if err := unix.Close(con.outFd); err != nil {
		o.logger().Entry(loglvl.DebugLevel, "unable to close output fd").
			FieldAdd("connection", con.name).
			ErrorAdd(true, err).Log()
	}

	con.outFd = -1
}

// freeConLocked releases a completed connection: any remaining descriptor is
// closed (unless extracted) and the connection leaves the complete list.
// Caller holds the manager mutex.
func (o *mgr) freeConLocked(con *Fd) {
	if con.extract == nil {
		o.closeInputLocked(con)
		o.closeOutputLocked(con)
	} else {
		if con.inFd >= 0 {
			_ = o.pol.Unlink(con.inFd, con.name)
			delete(o.fdcon, con.inFd)
		}
		if con.outFd >= 0 && con.outFd != con.inFd {
			_ = o.pol.Unlink(con.outFd, con.name)
			delete(o.fdcon, con.outFd)
		}
	}

	o.complete = listRemove(o.complete, con)

	if con.tls != nil {
		_ = con.tls.Close()
		con.tls = nil
	}

	o.logger().Entry(loglvl.DebugLevel, "connection freed").
		FieldAdd("connection", con.name).Log()
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", a.Addr, a.Port)
	case *unix.SockaddrUnix:
		if a.Name == "" {
			return "unix"
		}
		return a.Name
	}

	return ""
}
