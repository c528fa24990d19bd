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
	"strconv"
	"strings"

	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
)

// Settings string keys recognized by ParseSettings.
const (
	KeyThreads        = "CONMGR_THREADS"
	KeyMaxConnections = "CONMGR_MAX_CONNECTIONS"
	KeyUsePoll        = "CONMGR_USE_POLL"
	KeyWaitWriteDelay = "CONMGR_WAIT_WRITE_DELAY"
	KeyReadTimeout    = "CONMGR_READ_TIMEOUT"
	KeyWriteTimeout   = "CONMGR_WRITE_TIMEOUT"
	KeyConnectTimeout = "CONMGR_CONNECT_TIMEOUT"
	KeyQuiesceTimeout = "CONMGR_QUIESCE_TIMEOUT"
)

// ParseSettings applies a comma separated `KEY=value` list onto the
// configuration. Empty tokens are skipped, unknown keys are logged and
// ignored, known keys with an unparsable value return an error. Applying the
// same string twice yields the same configuration.
func (o *Config) ParseSettings(value string, log liblog.FuncLog) liberr.Error {
	if o == nil {
		return ErrorParamEmpty.Error(nil)
	}

	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)

		if tok == "" {
			continue
		}

		key, val, _ := strings.Cut(tok, "=")

		switch key {
		case KeyThreads:
			if n, e := parsePositiveInt(key, val); e != nil {
				return e
			} else {
				o.Threads = n
			}

		case KeyMaxConnections:
			if n, e := parsePositiveInt(key, val); e != nil {
				return e
			} else {
				o.MaxConnections = n
			}

		case KeyUsePoll:
			o.UsePoll = true

		case KeyWaitWriteDelay:
			if d, e := parseSeconds(key, val); e != nil {
				return e
			} else {
				o.WaitWriteDelay = d
			}

		case KeyReadTimeout:
			if d, e := parseSeconds(key, val); e != nil {
				return e
			} else {
				o.ReadTimeout = d
			}

		case KeyWriteTimeout:
			if d, e := parseSeconds(key, val); e != nil {
				return e
			} else {
				o.WriteTimeout = d
			}

		case KeyConnectTimeout:
			if d, e := parseSeconds(key, val); e != nil {
				return e
			} else {
				o.ConnectTimeout = d
			}

		case KeyQuiesceTimeout:
			if d, e := parseSeconds(key, val); e != nil {
				return e
			} else {
				o.QuiesceTimeout = d
			}

		default:
			ent := logger(log).Entry(loglvl.WarnLevel, "ignoring unknown conmgr settings key")
			ent = ent.FieldAdd("key", key)
			ent.Log()
		}
	}

	return nil
}

func parsePositiveInt(key, val string) (int, liberr.Error) {
	n, err := strconv.Atoi(val)

	if err != nil {
		return 0, ErrorSettingsValue.Error(fmt.Errorf("key '%s': %w", key, err))
	} else if n < 1 {
		//nolint #goerr113
		return 0, ErrorSettingsValue.Error(fmt.Errorf("key '%s': value must be positive", key))
	}

	return n, nil
}

func parseSeconds(key, val string) (libdur.Duration, liberr.Error) {
	n, err := strconv.ParseInt(val, 10, 64)

	if err != nil {
		return 0, ErrorSettingsValue.Error(fmt.Errorf("key '%s': %w", key, err))
	} else if n < 0 {
		//nolint #goerr113
		return 0, ErrorSettingsValue.Error(fmt.Errorf("key '%s': value cannot be negative", key))
	}

	return libdur.Seconds(n), nil
}

func logger(fct liblog.FuncLog) liblog.Logger {
	if fct == nil {
		return liblog.GetDefault()
	} else if l := fct(); l == nil {
		return liblog.GetDefault()
	} else {
		return l
	}
}
