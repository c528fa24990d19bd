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

package polling

import (
	"fmt"

	liberr "github.com/nabbar/golib/errors"
)

const (
	// ErrorParamEmpty indicates that required parameters were not provided.
	ErrorParamEmpty liberr.CodeError = iota + liberr.MinAvailable + 50

	// ErrorModeInvalid indicates an unknown poller backend mode.
	ErrorModeInvalid

	// ErrorInterestInvalid indicates an interest type the backend cannot map.
	ErrorInterestInvalid

	// ErrorPollerClosed indicates a call on a closed poller.
	ErrorPollerClosed

	// ErrorFdNotFound indicates an operation on an unregistered descriptor.
	ErrorFdNotFound

	// ErrorSyscallCreate indicates the kernel refused to create the backend.
	ErrorSyscallCreate

	// ErrorSyscallCtl indicates a failed interest registration call.
	ErrorSyscallCtl

	// ErrorSyscallPoll indicates a failed wait call.
	ErrorSyscallPoll
)

func init() {
	if liberr.ExistInMapMessage(ErrorParamEmpty) {
		panic(fmt.Errorf("error code collision with package conmgr/polling"))
	}
	liberr.RegisterIdFctMessage(ErrorParamEmpty, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorParamEmpty:
		return "given parameters is empty"
	case ErrorModeInvalid:
		return "invalid poller backend mode"
	case ErrorInterestInvalid:
		return "invalid polling interest type"
	case ErrorPollerClosed:
		return "poller is closed"
	case ErrorFdNotFound:
		return "file descriptor is not registered"
	case ErrorSyscallCreate:
		return "cannot create kernel poller"
	case ErrorSyscallCtl:
		return "cannot register file descriptor interest"
	case ErrorSyscallPoll:
		return "cannot wait for readiness events"
	}

	return liberr.NullMessage
}
