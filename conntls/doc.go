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

// Package conntls is the seam between the connection manager and the TLS
// implementation protecting a connection.
//
// A Provider builds per-connection Sessions working directly on the raw file
// descriptors; the Session contract requires blocking descriptors during the
// handshake, so the manager flips a descriptor to blocking around that call
// and restores it on every exit path. After a failed handshake the session
// reports a blinding delay the manager honors before tearing the connection
// down, defeating timing side channels.
//
// The package also carries the wire fingerprint detector that lets a single
// listening port accept both TLS and plaintext RPC streams: it matches the
// SSLv3 record header or the TLSv1.x client hello prefix on the first bytes
// of a connection.
//
// The default provider wraps crypto/tls, configured through the golib
// certificates package.
package conntls
