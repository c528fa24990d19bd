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

package conntls

import (
	"sync"
	"time"

	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
)

// Role is the TLS role taken on one connection.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}

	return "invalid"
}

// Session protects one connection. Read returns plaintext, Write encrypts
// and sends. Handshake requires both descriptors to be blocking; the caller
// owns flipping them and restoring nonblocking afterwards.
type Session interface {
	// Handshake runs the TLS handshake to completion.
	Handshake() error

	// Read decrypts application bytes into p.
	Read(p []byte) (int, error)

	// Write encrypts and sends application bytes from p.
	Write(p []byte) (int, error)

	// BlindingDelay reports the minimum interval to wait after a handshake
	// failure before tearing the connection down.
	BlindingDelay() time.Duration

	// Close sends the close notification. The caller still owns the
	// underlying descriptors.
	Close() error
}

// Provider builds Sessions on raw descriptor pairs.
type Provider interface {
	// Name returns the registered name of the provider.
	Name() string

	// New builds a session for the given role over the descriptor pair.
	// The input and output descriptor may be the same. preface holds bytes
	// already read off the wire (the fingerprinted prefix); the session
	// consumes them before reading the descriptor.
	New(role Role, inputFd, outputFd int, preface []byte, cfg libtls.TLSConfig, servername string) (Session, liberr.Error)
}

// FuncProvider builds a new provider instance.
type FuncProvider func() Provider

var (
	reg = struct {
		m sync.RWMutex
		f map[string]FuncProvider
	}{
		f: make(map[string]FuncProvider),
	}
)

// Register records a provider constructor under its name. Registering the
// same name twice keeps the last constructor.
func Register(name string, fct FuncProvider) {
	if name == "" || fct == nil {
		return
	}

	reg.m.Lock()
	defer reg.m.Unlock()

	reg.f[name] = fct
}

// Get builds a provider registered under the given name, or nil when unknown.
func Get(name string) Provider {
	reg.m.RLock()
	defer reg.m.RUnlock()

	if fct, ok := reg.f[name]; ok {
		return fct()
	}

	return nil
}
