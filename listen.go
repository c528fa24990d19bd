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
	"net"
	"strconv"

	cmwrk "github.com/nabbar/conmgr/work"
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

const listenBacklog = 4096

// resolveSockaddr turns a network and address into a bindable sockaddr,
// going through the host supplied parse callback when one is registered.
func (o *mgr) resolveSockaddr(network, address string) (int, unix.Sockaddr, liberr.Error) {
	switch network {
	case "unix":
		return unix.AF_UNIX, &unix.SockaddrUnix{Name: address}, nil

	case "tcp", "tcp4", "tcp6":
		var (
			host string
			port string
			err  error
		)

		if o.cbk.ParseHostPort != nil {
			host, port, err = o.cbk.ParseHostPort(address)
		} else {
			host, port, err = net.SplitHostPort(address)
		}

		if err != nil {
			return 0, nil, ErrorListenAddress.Error(err)
		}

		prt, err := strconv.Atoi(port)
		if err != nil || prt < 0 || prt > 65535 {
			return 0, nil, ErrorListenAddress.Error(err)
		}

		if host == "" {
			host = "::"
		}

		ip := net.ParseIP(host)
		if ip == nil {
			ips, e := net.LookupIP(host)
			if e != nil || len(ips) == 0 {
				return 0, nil, ErrorListenAddress.Error(e)
			}
			ip = ips[0]
		}

		if ip4 := ip.To4(); ip4 != nil && network != "tcp6" {
			sa := &unix.SockaddrInet4{Port: prt}
			copy(sa.Addr[:], ip4)
			return unix.AF_INET, sa, nil
		}

		sa := &unix.SockaddrInet6{Port: prt}
		copy(sa.Addr[:], ip.To16())
		return unix.AF_INET6, sa, nil
	}

	return 0, nil, ErrorListenAddress.Error(nil)
}

func (o *mgr) CreateListenSocket(t ConType, network, address string, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error) {
	fam, sa, err := o.resolveSockaddr(network, address)
	if err != nil {
		return nil, err
	}

	fd, e := unix.Socket(fam, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if e != nil {
		return nil, ErrorListenAddress.Error(e)
	}

	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if e = unix.Bind(fd, sa); e != nil {
		_ = unix.Close(fd)
		return nil, ErrorListenAddress.Error(e)
	}

	if e = unix.Listen(fd, listenBacklog); e != nil {
		_ = unix.Close(fd)
		return nil, ErrorListenAddress.Error(e)
	}

	con, err := o.ProcessFdListen(fd, t, events, flags, arg)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	o.logger().Entry(loglvl.InfoLevel, "listening").
		FieldAdd("connection", con.name).
		FieldAdd("address", address).Log()

	return con, nil
}

func (o *mgr) CreateListenSockets(t ConType, network string, addresses []string, events *Events, flags Flags, arg interface{}) liberr.Error {
	if len(addresses) == 0 {
		return ErrorParamEmpty.Error(nil)
	}

	for _, adr := range addresses {
		if _, err := o.CreateListenSocket(t, network, adr, events, flags, arg); err != nil {
			return err
		}
	}

	return nil
}

func (o *mgr) CreateConnectSocket(t ConType, network, address string, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error) {
	fam, sa, err := o.resolveSockaddr(network, address)
	if err != nil {
		return nil, ErrorConnectAddress.Error(err)
	}

	fd, e := unix.Socket(fam, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if e != nil {
		return nil, ErrorConnectAddress.Error(e)
	}

	pending := false

	if e = unix.Connect(fd, sa); e != nil {
		if e == unix.EINPROGRESS {
			pending = true
		} else {
			_ = unix.Close(fd)
			return nil, ErrorConnectAddress.Error(e)
		}
	}

	o.m.Lock()

	if o.finished || o.shutdown {
		o.m.Unlock()
		_ = unix.Close(fd)
		return nil, ErrorManagerShutdown.Error(nil)
	}

	con, err := o.addConLocked(t, fd, fd, events, flags, arg, address)
	if err != nil {
		o.m.Unlock()
		_ = unix.Close(fd)
		return nil, err
	}

	if pending {
		con.connecting = true
	} else {
		con.flags |= flagIsConnected
	}

	o.m.Unlock()

	if !pending {
		if err = o.startConTLS(con); err != nil {
			return nil, err
		}
		o.queueOnConnection(con)
	}

	return con, nil
}

// handleAccept drains one accept from a ready listener and registers the new
// connection with the listener's callback table. Runs on a worker goroutine.
func (o *mgr) handleAccept(args CallbackArgs, _ interface{}) {
	lst := args.Con

	if args.Status == cmwrk.StatusCancelled {
		return
	}

	o.m.Lock()
	lst.flags &^= flagCanRead
	fd := lst.inFd
	o.m.Unlock()

	if fd < 0 {
		return
	}

	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)

	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}

		if err == unix.EMFILE || err == unix.ENFILE || err == unix.ENOMEM {
			o.logger().Entry(loglvl.ErrorLevel, "out of resources while accepting, pausing accept").
				FieldAdd("connection", lst.name).
				ErrorAdd(true, err).Log()
			return
		}

		o.logger().Entry(loglvl.ErrorLevel, "accept failed").
			FieldAdd("connection", lst.name).
			ErrorAdd(true, err).Log()
		return
	}

	o.m.Lock()

	flags := lst.flags &^ (flagIsListen | flagCanRead | flagCanWrite)

	if o.shutdown || o.finished {
		o.m.Unlock()
		_ = unix.Close(nfd)
		return
	}

	con, e := o.addConLocked(lst.typ, nfd, nfd, lst.events, flags, lst.arg, "")
	if e != nil {
		o.m.Unlock()
		o.logger().Entry(loglvl.ErrorLevel, "cannot register accepted connection").
			FieldAdd("connection", lst.name).
			ErrorAdd(true, e).Log()
		_ = unix.Close(nfd)
		return
	}

	con.flags |= flagIsConnected
	o.m.Unlock()

	if err := o.startConTLS(con); err != nil {
		o.logger().Entry(loglvl.ErrorLevel, "cannot start TLS on accepted connection").
			FieldAdd("connection", con.name).
			ErrorAdd(true, err).Log()

		o.m.Lock()
		o.closeCon(con)
		o.m.Unlock()
		return
	}

	o.queueOnConnection(con)
}

// QueueSendFd passes a raw descriptor to the peer over a unix socket
// connection using ancillary data.
func (o *Fd) QueueSendFd(fd int) liberr.Error {
	if fd < 0 {
		return ErrorFdInvalid.Error(nil)
	}

	return o.mgr.AddWorkConFifo(o, func(args CallbackArgs, arg interface{}) {
		if args.Status == cmwrk.StatusCancelled {
			return
		}

		args.Con.mgr.m.Lock()
		out := args.Con.outFd
		args.Con.mgr.m.Unlock()

		if out < 0 {
			return
		}

		oob := unix.UnixRights(fd)
		if err := unix.Sendmsg(out, []byte{0}, oob, nil, 0); err != nil {
			args.Con.mgr.logger().Entry(loglvl.ErrorLevel, "cannot send descriptor").
				FieldAdd("connection", args.Con.name).
				ErrorAdd(true, err).Log()
		}
	}, nil, "send_fd")
}

// QueueReceiveFd receives one descriptor passed by the peer over a unix
// socket connection and registers it as a new managed connection with the
// given callback table.
func (o *Fd) QueueReceiveFd(t ConType, events *Events, arg interface{}) liberr.Error {
	return o.mgr.AddWorkConFifo(o, func(args CallbackArgs, _ interface{}) {
		if args.Status == cmwrk.StatusCancelled {
			return
		}

		m := args.Con.mgr

		m.m.Lock()
		in := args.Con.inFd
		m.m.Unlock()

		if in < 0 {
			return
		}

		var (
			b   [1]byte
			oob [unix.CmsgSpace(4)]byte
		)

		_, oobn, _, _, err := unix.Recvmsg(in, b[:], oob[:], 0)
		if err != nil {
			return
		}

		msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return
		}

		for _, msg := range msgs {
			fds, err := unix.ParseUnixRights(&msg)
			if err != nil {
				continue
			}

			for _, fd := range fds {
				if _, e := m.ProcessFd(t, fd, fd, events, FlagNone, arg); e != nil {
					_ = unix.Close(fd)
				}
			}
		}
	}, nil, "receive_fd")
}
