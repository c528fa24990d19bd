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

package conntls

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
	"golang.org/x/sys/unix"
)

const (
	// NameStd is the registered name of the crypto/tls provider.
	NameStd = "std"

	// DefaultBlindingDelay is reported after a handshake failure when the
	// provider carries no specific value.
	DefaultBlindingDelay = 3 * time.Second
)

func init() {
	Register(NameStd, NewStd)
}

// NewStd returns the crypto/tls backed provider.
func NewStd() Provider {
	return &std{
		dly: DefaultBlindingDelay,
	}
}

type std struct {
	dly time.Duration
}

func (o *std) Name() string {
	return NameStd
}

func (o *std) New(role Role, inputFd, outputFd int, preface []byte, cfg libtls.TLSConfig, servername string) (Session, liberr.Error) {
	if inputFd < 0 || outputFd < 0 {
		return nil, ErrorFdInvalid.Error(nil)
	} else if cfg == nil {
		return nil, ErrorParamEmpty.Error(nil)
	}

	tcf := cfg.TlsConfig(servername)
	if tcf == nil {
		return nil, ErrorConfigInvalid.Error(nil)
	}

	raw := &fdConn{
		in:  inputFd,
		out: outputFd,
		pre: preface,
	}

	var con *tls.Conn

	switch role {
	case RoleServer:
		con = tls.Server(raw, tcf)
	case RoleClient:
		con = tls.Client(raw, tcf)
	default:
		return nil, ErrorParamEmpty.Error(nil)
	}

	return &ses{
		con: con,
		dly: o.dly,
	}, nil
}

type ses struct {
	con *tls.Conn
	dly time.Duration
}

func (o *ses) Handshake() error {
	if err := o.con.Handshake(); err != nil {
		return ErrorHandshake.Error(err)
	}

	return nil
}

func (o *ses) Read(p []byte) (int, error) {
	return o.con.Read(p)
}

func (o *ses) Write(p []byte) (int, error) {
	return o.con.Write(p)
}

func (o *ses) BlindingDelay() time.Duration {
	return o.dly
}

func (o *ses) Close() error {
	return o.con.Close()
}

// fdConn adapts a raw descriptor pair to net.Conn for crypto/tls. It carries
// no deadline support, which is why the handshake contract requires blocking
// descriptors. Close is a no-op: descriptor ownership stays with the caller.
type fdConn struct {
	in  int
	out int
	pre []byte
}

func (o *fdConn) Read(p []byte) (int, error) {
	if len(o.pre) > 0 {
		n := copy(p, o.pre)
		o.pre = o.pre[n:]
		return n, nil
	}

	n, err := unix.Read(o.in, p)

	if n == 0 && err == nil && len(p) > 0 {
		return 0, io.EOF
	} else if n < 0 {
		n = 0
	}

	return n, err
}

// Write never surfaces EAGAIN: the TLS record layer cannot recover from a
// partial record write, so pressure is absorbed here by waiting for the
// descriptor to drain.
func (o *fdConn) Write(p []byte) (int, error) {
	var total int

	for len(p) > 0 {
		n, err := unix.Write(o.out, p)

		if n > 0 {
			total += n
			p = p[n:]
			continue
		}

		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			fds := []unix.PollFd{{Fd: int32(o.out), Events: unix.POLLOUT}}
			_, _ = unix.Poll(fds, 100)
			continue
		}

		if err == unix.EINTR {
			continue
		}

		if err == nil {
			err = io.ErrShortWrite
		}

		return total, err
	}

	return total, nil
}

func (o *fdConn) Close() error {
	return nil
}

func (o *fdConn) LocalAddr() net.Addr {
	return &net.UnixAddr{Name: "fd", Net: "fd"}
}

func (o *fdConn) RemoteAddr() net.Addr {
	return &net.UnixAddr{Name: "fd", Net: "fd"}
}

func (o *fdConn) SetDeadline(t time.Time) error {
	return unix.ENOTSUP
}

func (o *fdConn) SetReadDeadline(t time.Time) error {
	return unix.ENOTSUP
}

func (o *fdConn) SetWriteDeadline(t time.Time) error {
	return unix.ENOTSUP
}
