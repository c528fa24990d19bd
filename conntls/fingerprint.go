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

const (
	msgTypeHandshake   = 0x16 // SSLv3: handshake(22)
	msgTypeClientHello = 0x01 // TLSv1.x: client_hello(1)

	headerLengthMin = 2
	headerLengthMax = 0x0FFF

	protocolVersionMin = 0x0300
	protocolVersionMax = 0x03ff
)

// Match is the outcome of fingerprinting the first bytes of a stream.
type Match uint8

const (
	// MatchNone means the bytes cannot be a TLS handshake.
	MatchNone Match = iota

	// MatchTLS means the bytes open a TLS or SSLv3 handshake.
	MatchTLS

	// MatchNeedMore means too few bytes arrived to decide; re-check on the
	// next readable event.
	MatchNeedMore
)

func (m Match) String() string {
	switch m {
	case MatchNone:
		return "NONE"
	case MatchTLS:
		return "TLS"
	case MatchNeedMore:
		return "NEED_MORE"
	}

	return "INVALID"
}

// Fingerprint inspects the first bytes of an inbound stream and reports
// whether they open a TLS handshake. It matches either the SSLv3 record
// handshake header (`0x16 <ver> <ver> <len> <len>`) or the TLSv1.x client
// hello prefix (`0x01 <24-bit len> <ver> <ver>`).
func Fingerprint(p []byte) Match {
	ssl := matchRecordHeader(p)
	tls := matchClientHello(p)

	if ssl == MatchTLS || tls == MatchTLS {
		return MatchTLS
	}

	if ssl == MatchNeedMore || tls == MatchNeedMore {
		return MatchNeedMore
	}

	return MatchNone
}

// matchRecordHeader matches per SSLv3 RFC#6101:
//
//	| 8 - msg_type | 16 - SSL version | 16 - packet length |
//
// Example record headers: 0x16 03 01 02 00, 0x16 03 01 00 f4.
func matchRecordHeader(p []byte) Match {
	if len(p) < 5 {
		return MatchNeedMore
	}

	if p[0] != msgTypeHandshake {
		return MatchNone
	}

	ver := uint16(p[1])<<8 | uint16(p[2])
	if ver < protocolVersionMin || ver > protocolVersionMax {
		return MatchNone
	}

	lng := uint16(p[3])<<8 | uint16(p[4])
	if lng < headerLengthMin || lng > headerLengthMax {
		return MatchNone
	}

	return MatchTLS
}

// matchClientHello matches per TLSv1.x RFC#8446:
//
//	| 8 - msg_type | 24 - length | 16 - protocol version |
//
// Example hello: 0x01 00 01 fc 03 03.
func matchClientHello(p []byte) Match {
	if len(p) < 6 {
		return MatchNeedMore
	}

	if p[0] != msgTypeClientHello {
		return MatchNone
	}

	lng := uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
	if lng < headerLengthMin || lng > headerLengthMax {
		return MatchNone
	}

	ver := uint16(p[4])<<8 | uint16(p[5])
	if ver < protocolVersionMin || ver > protocolVersionMax {
		return MatchNone
	}

	return MatchTLS
}
