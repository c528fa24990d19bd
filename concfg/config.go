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

package concfg

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
	libsiz "github.com/nabbar/golib/size"
)

const (
	// ThreadsMin is the smallest allowed worker pool size.
	ThreadsMin = 2

	// ThreadsMax is the largest allowed worker pool size.
	ThreadsMax = 1024

	// ThreadsDefault is the worker pool size used when none is configured.
	ThreadsDefault = 10

	// MaxConnectionsDefault caps tracked connections when none is configured.
	MaxConnectionsDefault = 1024

	// MaxMsgSizeDefault bounds the length prefix of an inbound RPC message.
	MaxMsgSizeDefault = 128 * libsiz.SizeKilo

	// ReadSizeDefault is the smallest read issued against a readable
	// descriptor when the kernel does not report a byte count.
	ReadSizeDefault = 512 * libsiz.SizeUnit
)

// Config is the connection manager configuration.
type Config struct {
	// Threads is the worker pool size, clamped into [ThreadsMin, ThreadsMax].
	Threads int `json:"threads" yaml:"threads" toml:"threads" mapstructure:"threads" validate:"omitempty,gte=2,lte=1024"`

	// MaxConnections caps tracked connections; accepting is paused beyond it.
	MaxConnections int `json:"max-connections" yaml:"max-connections" toml:"max-connections" mapstructure:"max-connections" validate:"omitempty,gte=1"`

	// UsePoll forces the level-triggered poll() backend instead of epoll.
	UsePoll bool `json:"use-poll" yaml:"use-poll" toml:"use-poll" mapstructure:"use-poll"`

	// MaxMsgSize bounds the length prefix accepted while framing RPC messages.
	MaxMsgSize libsiz.Size `json:"max-msg-size" yaml:"max-msg-size" toml:"max-msg-size" mapstructure:"max-msg-size"`

	// WaitWriteDelay is the polling interval while watching for
	// write-complete work on connections whose kernel cannot report the
	// buffered output byte count.
	WaitWriteDelay libdur.Duration `json:"wait-write-delay" yaml:"wait-write-delay" toml:"wait-write-delay" mapstructure:"wait-write-delay"`

	// ReadTimeout is the idle threshold before the read timeout callback
	// fires. Zero disables the watch.
	ReadTimeout libdur.Duration `json:"read-timeout" yaml:"read-timeout" toml:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout is the idle threshold before the write timeout callback
	// fires. Zero disables the watch.
	WriteTimeout libdur.Duration `json:"write-timeout" yaml:"write-timeout" toml:"write-timeout" mapstructure:"write-timeout"`

	// ConnectTimeout is the threshold before the connect timeout callback
	// fires on a pending outgoing connection. Zero disables the watch.
	ConnectTimeout libdur.Duration `json:"connect-timeout" yaml:"connect-timeout" toml:"connect-timeout" mapstructure:"connect-timeout"`

	// QuiesceTimeout bounds the wait for in-flight work when quiescing.
	QuiesceTimeout libdur.Duration `json:"quiesce-timeout" yaml:"quiesce-timeout" toml:"quiesce-timeout" mapstructure:"quiesce-timeout"`
}

// DefaultConfig returns the configuration used when the host supplies nothing.
func DefaultConfig() Config {
	return Config{
		Threads:        ThreadsDefault,
		MaxConnections: MaxConnectionsDefault,
		MaxMsgSize:     MaxMsgSizeDefault,
	}
}

// Clamp normalizes out-of-range values instead of rejecting them: a zero pool
// size becomes the default, an undersized (or negative) one the minimum, an
// oversized one the maximum.
func (o *Config) Clamp() {
	if o.Threads == 0 {
		o.Threads = ThreadsDefault
	} else if o.Threads < ThreadsMin {
		o.Threads = ThreadsMin
	} else if o.Threads > ThreadsMax {
		o.Threads = ThreadsMax
	}

	if o.MaxConnections < 1 {
		o.MaxConnections = MaxConnectionsDefault
	}

	if o.MaxMsgSize < 1 {
		o.MaxMsgSize = MaxMsgSizeDefault
	}
}

func (o Config) Validate() liberr.Error {
	var e = ErrorValidatorError.Error(nil)

	if err := libval.New().Struct(o); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		}

		for _, er := range err.(libval.ValidationErrors) {
			//nolint #goerr113
			e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
		}
	}

	if !e.HasParent() {
		e = nil
	}

	return e
}
