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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	cmgr "github.com/nabbar/conmgr"
	libtls "github.com/nabbar/golib/certificates"
	"golang.org/x/sys/unix"
)

// selfSignedPair returns a PEM key and certificate for localhost, valid one
// day, for test listeners only.
func selfSignedPair(t *testing.T) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}

	tpl := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "localhost",
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	kdr, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	crt := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	prv := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: kdr})

	return string(prv), string(crt)
}

type tlsMsg struct {
	size int
	tls  bool
}

// startDualListener builds a manager with a listener accepting both TLS and
// plaintext RPC streams on the same port.
func startDualListener(t *testing.T, flags cmgr.Flags) (cmgr.Manager, string, func() []tlsMsg) {
	t.Helper()

	key, crt := selfSignedPair(t)

	cfg := libtls.New()
	if e := cfg.AddCertificatePairString(key, crt); e != nil {
		t.Fatalf("add certificate pair: %v", e)
	}

	m := testMgr(t, nil)

	if e := m.SetTLS("std", cfg); e != nil {
		t.Fatalf("set tls: %v", e)
	}

	var (
		mux sync.Mutex
		got []tlsMsg
	)

	events := &cmgr.Events{
		OnMsg: func(con *cmgr.Fd, msg interface{}, unpackErr error, arg interface{}) error {
			if unpackErr != nil {
				return unpackErr
			}

			p := msg.(*cmgr.Msg).Payload.([]byte)

			mux.Lock()
			got = append(got, tlsMsg{size: len(p), tls: con.IsTLS()})
			mux.Unlock()

			return nil
		},
	}

	lst, e := m.CreateListenSocket(cmgr.TypeRPC, "tcp", "127.0.0.1:0", events, flags, nil)
	if e != nil {
		t.Fatalf("create listen socket: %v", e)
	}

	sa, errSock := unix.Getsockname(lst.InputFd())
	if errSock != nil {
		t.Fatalf("getsockname: %v", errSock)
	}

	addr := "127.0.0.1:" + strconv.Itoa(sa.(*unix.SockaddrInet4).Port)

	if e = m.Run(false); e != nil {
		t.Fatalf("run: %v", e)
	}

	return m, addr, func() []tlsMsg {
		mux.Lock()
		defer mux.Unlock()
		return append([]tlsMsg(nil), got...)
	}
}

func TestManager_FingerprintRoutesTLSAndRPC(t *testing.T) {
	_, addr, msgs := startDualListener(t, cmgr.FlagTLSServer|cmgr.FlagTLSDetect)

	// first peer negotiates TLS and sends a 9 byte payload inside the channel
	cli, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls dial: %v", err)
	}
	defer func() {
		_ = cli.Close()
	}()

	if _, err = cli.Write(rpcFrame(make([]byte, 9))); err != nil {
		t.Fatalf("tls write: %v", err)
	}

	waitFor(t, 10*time.Second, "TLS routed message", func() bool {
		for _, m := range msgs() {
			if m.tls && m.size == 9 {
				return true
			}
		}
		return false
	})

	// second peer speaks plaintext RPC on the same port
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() {
		_ = raw.Close()
	}()

	if _, err = raw.Write(rpcFrame(make([]byte, 7))); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, 10*time.Second, "plaintext routed message", func() bool {
		for _, m := range msgs() {
			if !m.tls && m.size == 7 {
				return true
			}
		}
		return false
	})
}

func TestManager_TLSRequiredRejectsPlaintext(t *testing.T) {
	_, addr, msgs := startDualListener(t, cmgr.FlagTLSServer|cmgr.FlagTLSDetect|cmgr.FlagTLSRequired)

	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() {
		_ = raw.Close()
	}()

	if _, err = raw.Write(rpcFrame([]byte("plain"))); err != nil {
		t.Fatalf("write: %v", err)
	}

	// the peer gets a best effort reply then the connection closes
	_ = raw.SetReadDeadline(time.Now().Add(10 * time.Second))

	buf := make([]byte, 4096)
	sawEOF := false

	for {
		n, e := raw.Read(buf)
		if e != nil {
			sawEOF = errors.Is(e, io.EOF)
			break
		}
		if n == 0 {
			break
		}
	}

	if !sawEOF {
		t.Errorf("connection not closed after plaintext on a TLS required listener")
	}

	if got := msgs(); len(got) != 0 {
		t.Errorf("plaintext message reached OnMsg on a TLS required listener: %v", got)
	}
}
