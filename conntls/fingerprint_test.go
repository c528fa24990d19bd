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

package conntls_test

import (
	"testing"

	cmtls "github.com/nabbar/conmgr/conntls"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		nam string
		buf []byte
		exp cmtls.Match
	}{
		{
			nam: "sslv3 record header tls12",
			buf: []byte{0x16, 0x03, 0x03, 0x00, 0x05, 0xaa},
			exp: cmtls.MatchTLS,
		},
		{
			nam: "sslv3 record header tls10",
			buf: []byte{0x16, 0x03, 0x01, 0x02, 0x00},
			exp: cmtls.MatchTLS,
		},
		{
			nam: "client hello prefix",
			buf: []byte{0x01, 0x00, 0x01, 0xfc, 0x03, 0x03},
			exp: cmtls.MatchTLS,
		},
		{
			nam: "rpc length prefix",
			buf: []byte{0x00, 0x00, 0x00, 0x07, 0x01, 0x02},
			exp: cmtls.MatchNone,
		},
		{
			nam: "record header with bad version",
			buf: []byte{0x16, 0x07, 0x07, 0x00, 0x05, 0xaa},
			exp: cmtls.MatchNone,
		},
		{
			nam: "record header with oversized length",
			buf: []byte{0x16, 0x03, 0x03, 0xff, 0xff, 0xaa},
			exp: cmtls.MatchNone,
		},
		{
			nam: "client hello with bad version",
			buf: []byte{0x01, 0x00, 0x01, 0xfc, 0x07, 0x07},
			exp: cmtls.MatchNone,
		},
		{
			nam: "too short to decide",
			buf: []byte{0x16, 0x03},
			exp: cmtls.MatchNeedMore,
		},
		{
			nam: "five bytes of a possible client hello",
			buf: []byte{0x01, 0x00, 0x01, 0xfc, 0x03},
			exp: cmtls.MatchNeedMore,
		},
		{
			nam: "empty buffer",
			buf: nil,
			exp: cmtls.MatchNeedMore,
		},
	}

	for _, tc := range tests {
		t.Run(tc.nam, func(t *testing.T) {
			if got := cmtls.Fingerprint(tc.buf); got != tc.exp {
				t.Errorf("Fingerprint(% x) = %s, want %s", tc.buf, got, tc.exp)
			}
		})
	}
}

func TestProviderRegistry(t *testing.T) {
	if p := cmtls.Get(cmtls.NameStd); p == nil {
		t.Fatalf("std provider is not registered")
	} else if p.Name() != cmtls.NameStd {
		t.Errorf("provider name = %q, want %q", p.Name(), cmtls.NameStd)
	}

	if p := cmtls.Get("no-such-provider"); p != nil {
		t.Errorf("expected nil provider for unknown name")
	}
}
