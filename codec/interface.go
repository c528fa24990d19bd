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

package codec

import (
	"sync"
)

// Codec packs and unpacks RPC payloads. The manager calls Unpack with a
// shadow buffer holding exactly one complete payload; the returned message
// and error are both forwarded to the host's message callback so it can
// answer a malformed request before the connection closes.
type Codec interface {
	// Name returns the registered name of the codec.
	Name() string

	// Unpack decodes one complete payload.
	Unpack(p []byte) (msg interface{}, err error)

	// Pack encodes a message into the payload bytes to be framed and sent.
	Pack(msg interface{}) ([]byte, error)
}

// FuncCodec builds a new codec instance.
type FuncCodec func() Codec

var (
	reg = struct {
		m sync.RWMutex
		f map[string]FuncCodec
	}{
		f: make(map[string]FuncCodec),
	}
)

// Register records a codec constructor under its name. Registering the same
// name twice keeps the last constructor.
func Register(name string, fct FuncCodec) {
	if name == "" || fct == nil {
		return
	}

	reg.m.Lock()
	defer reg.m.Unlock()

	reg.f[name] = fct
}

// Get builds a codec registered under the given name, or nil when unknown.
func Get(name string) Codec {
	reg.m.RLock()
	defer reg.m.RUnlock()

	if fct, ok := reg.f[name]; ok {
		return fct()
	}

	return nil
}

// List returns the registered codec names.
func List() []string {
	reg.m.RLock()
	defer reg.m.RUnlock()

	res := make([]string, 0, len(reg.f))
	for n := range reg.f {
		res = append(res, n)
	}

	return res
}
