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

package conmgr

// inBuf is a connection's growable incoming buffer. dat[:end] holds pending
// bytes; prc is the processed offset within it. After a framing pass either
// the consumed prefix is compacted away (partial remainder moved to front)
// or the buffer resets to empty.
type inBuf struct {
	dat []byte
	end int
	prc int
}

func (b *inBuf) pending() int {
	return b.end - b.prc
}

func (b *inBuf) bytes() []byte {
	return b.dat[b.prc:b.end]
}

// grow ensures room for n more bytes past the current end.
func (b *inBuf) grow(n int) {
	if need := b.end + n; need > cap(b.dat) {
		dat := make([]byte, need)
		copy(dat, b.dat[:b.end])
		b.dat = dat
	} else {
		b.dat = b.dat[:cap(b.dat)]
	}
}

// writable returns the slice a read call fills; commit records bytes read.
func (b *inBuf) writable(n int) []byte {
	b.grow(n)
	return b.dat[b.end : b.end+n]
}

func (b *inBuf) commit(n int) {
	b.end += n
}

// consumeProcessed drops every processed byte and compacts the unprocessed
// remainder to the front of the buffer.
func (b *inBuf) consumeProcessed() {
	n := b.prc
	b.prc = 0

	if n <= 0 {
		return
	}

	if n >= b.end {
		b.end = 0
		return
	}

	b.end = copy(b.dat, b.dat[n:b.end])
}

func (b *inBuf) reset() {
	b.end = 0
	b.prc = 0
}

// outBuf is one queued outgoing buffer. off is the processed offset of bytes
// already handed to the kernel.
type outBuf struct {
	dat []byte
	off int
}

func (b *outBuf) remaining() []byte {
	return b.dat[b.off:]
}

func (b *outBuf) left() int {
	return len(b.dat) - b.off
}
