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
	libmap "github.com/mitchellh/mapstructure"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
	libsiz "github.com/nabbar/golib/size"
	libvpr "github.com/spf13/viper"
)

// FromViper decodes the given viper section into a Config, starting from the
// defaults. Durations accept the golib duration string forms, sizes accept
// unit suffixes.
func FromViper(vpr *libvpr.Viper, key string) (Config, liberr.Error) {
	cfg := DefaultConfig()

	if vpr == nil {
		return cfg, ErrorParamEmpty.Error(nil)
	}

	opt := func(d *libmap.DecoderConfig) {
		d.DecodeHook = libmap.ComposeDecodeHookFunc(
			libdur.ViperDecoderHook(),
			libsiz.ViperDecoderHook(),
			libmap.StringToTimeDurationHookFunc(),
		)
	}

	if key == "" {
		if err := vpr.Unmarshal(&cfg, opt); err != nil {
			return DefaultConfig(), ErrorViperDecode.Error(err)
		}
	} else if err := vpr.UnmarshalKey(key, &cfg, opt); err != nil {
		return DefaultConfig(), ErrorViperDecode.Error(err)
	}

	cfg.Clamp()

	return cfg, nil
}
