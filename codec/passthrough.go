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

const NamePassthrough = "passthrough"

func init() {
	Register(NamePassthrough, NewPassthrough)
}

// NewPassthrough returns a codec that hands payload bytes through untouched.
// Unpack copies the shadow buffer so the message outlives the connection's
// incoming buffer compaction.
func NewPassthrough() Codec {
	return &pst{}
}

type pst struct{}

func (o *pst) Name() string {
	return NamePassthrough
}

func (o *pst) Unpack(p []byte) (interface{}, error) {
	res := make([]byte, len(p))
	copy(res, p)
	return res, nil
}

func (o *pst) Pack(msg interface{}) ([]byte, error) {
	if msg == nil {
		return nil, ErrorMessageInvalid.Error(nil)
	}

	switch m := msg.(type) {
	case []byte:
		return m, nil
	case string:
		return []byte(m), nil
	}

	return nil, ErrorMessageInvalid.Error(nil)
}
