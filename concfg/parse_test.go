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

package concfg_test

import (
	libdur "github.com/nabbar/golib/duration"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cmcfg "github.com/nabbar/conmgr/concfg"
)

var _ = Describe("ParseSettings", func() {
	var cfg cmcfg.Config

	BeforeEach(func() {
		cfg = cmcfg.DefaultConfig()
	})

	Context("with a full settings string", func() {
		It("should apply threads and max connections", func() {
			err := cfg.ParseSettings("CONMGR_THREADS=93,CONMGR_MAX_CONNECTIONS=3484", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Threads).To(Equal(93))
			Expect(cfg.MaxConnections).To(Equal(3484))
		})

		It("should keep earlier values while applying a second string", func() {
			Expect(cfg.ParseSettings("CONMGR_THREADS=93,CONMGR_MAX_CONNECTIONS=3484", nil)).ToNot(HaveOccurred())
			Expect(cfg.ParseSettings(",,CONMGR_READ_TIMEOUT=9858,,,,,", nil)).ToNot(HaveOccurred())

			Expect(cfg.Threads).To(Equal(93))
			Expect(cfg.MaxConnections).To(Equal(3484))
			Expect(cfg.ReadTimeout).To(Equal(libdur.Seconds(9858)))
		})
	})

	Context("with empty tokens", func() {
		It("should skip them without error", func() {
			err := cfg.ParseSettings(",,,,,", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg).To(Equal(cmcfg.DefaultConfig()))
		})
	})

	Context("with flag keys", func() {
		It("should enable the poll backend", func() {
			Expect(cfg.ParseSettings("CONMGR_USE_POLL", nil)).ToNot(HaveOccurred())
			Expect(cfg.UsePoll).To(BeTrue())
		})
	})

	Context("with timeouts", func() {
		It("should parse every timeout key as seconds", func() {
			err := cfg.ParseSettings("CONMGR_WRITE_TIMEOUT=5,CONMGR_CONNECT_TIMEOUT=7,CONMGR_WAIT_WRITE_DELAY=3,CONMGR_QUIESCE_TIMEOUT=11", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.WriteTimeout).To(Equal(libdur.Seconds(5)))
			Expect(cfg.ConnectTimeout).To(Equal(libdur.Seconds(7)))
			Expect(cfg.WaitWriteDelay).To(Equal(libdur.Seconds(3)))
			Expect(cfg.QuiesceTimeout).To(Equal(libdur.Seconds(11)))
		})
	})

	Context("with unknown keys", func() {
		It("should ignore them", func() {
			err := cfg.ParseSettings("CONMGR_NOT_A_KEY=42,CONMGR_THREADS=12", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Threads).To(Equal(12))
		})
	})

	Context("with invalid values", func() {
		It("should reject a non numeric thread count", func() {
			err := cfg.ParseSettings("CONMGR_THREADS=abc", nil)
			Expect(err).To(HaveOccurred())
			Expect(err.IsCode(cmcfg.ErrorSettingsValue)).To(BeTrue())
		})

		It("should reject a negative timeout", func() {
			err := cfg.ParseSettings("CONMGR_READ_TIMEOUT=-1", nil)
			Expect(err).To(HaveOccurred())
			Expect(err.IsCode(cmcfg.ErrorSettingsValue)).To(BeTrue())
		})
	})

	Context("idempotence", func() {
		It("should yield the same configuration when parsed twice", func() {
			const s = "CONMGR_THREADS=93,CONMGR_MAX_CONNECTIONS=3484,CONMGR_USE_POLL"

			one := cmcfg.DefaultConfig()
			two := cmcfg.DefaultConfig()

			Expect(one.ParseSettings(s, nil)).ToNot(HaveOccurred())
			Expect(two.ParseSettings(s, nil)).ToNot(HaveOccurred())
			Expect(two.ParseSettings(s, nil)).ToNot(HaveOccurred())

			Expect(one).To(Equal(two))
		})
	})
})

var _ = Describe("Config", func() {
	Context("clamp", func() {
		It("should replace a zero pool size with the default", func() {
			cfg := cmcfg.Config{}
			cfg.Clamp()
			Expect(cfg.Threads).To(Equal(cmcfg.ThreadsDefault))
			Expect(cfg.MaxConnections).To(Equal(cmcfg.MaxConnectionsDefault))
		})

		It("should clamp an undersized pool to the minimum", func() {
			cfg := cmcfg.Config{Threads: 1}
			cfg.Clamp()
			Expect(cfg.Threads).To(Equal(cmcfg.ThreadsMin))
		})

		It("should clamp an oversized pool to the maximum", func() {
			cfg := cmcfg.Config{Threads: 4096}
			cfg.Clamp()
			Expect(cfg.Threads).To(Equal(cmcfg.ThreadsMax))
		})
	})

	Context("validate", func() {
		It("should accept the defaults", func() {
			Expect(cmcfg.DefaultConfig().Validate()).ToNot(HaveOccurred())
		})

		It("should reject an out of range pool size", func() {
			cfg := cmcfg.DefaultConfig()
			cfg.Threads = 10000
			Expect(cfg.Validate()).To(HaveOccurred())
		})
	})
})
