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
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	libvpr "github.com/spf13/viper"

	cmcfg "github.com/nabbar/conmgr/concfg"
)

var _ = Describe("FromViper", func() {
	Context("with a yaml section", func() {
		It("should decode every field over the defaults", func() {
			src := []byte(`
conmgr:
  threads: 12
  max-connections: 512
  use-poll: true
  read-timeout: 30s
`)

			vpr := libvpr.New()
			vpr.SetConfigType("yaml")
			Expect(vpr.ReadConfig(bytes.NewReader(src))).ToNot(HaveOccurred())

			cfg, err := cmcfg.FromViper(vpr, "conmgr")
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Threads).To(Equal(12))
			Expect(cfg.MaxConnections).To(Equal(512))
			Expect(cfg.UsePoll).To(BeTrue())
			Expect(cfg.ReadTimeout.Time().Seconds()).To(BeNumerically("==", 30))
			Expect(cfg.MaxMsgSize).To(Equal(cmcfg.MaxMsgSizeDefault))
		})
	})

	Context("with a nil viper", func() {
		It("should return the defaults and an error", func() {
			cfg, err := cmcfg.FromViper(nil, "conmgr")
			Expect(err).To(HaveOccurred())
			Expect(cfg).To(Equal(cmcfg.DefaultConfig()))
		})
	})

	Context("with a missing section", func() {
		It("should keep the clamped defaults", func() {
			vpr := libvpr.New()

			cfg, err := cmcfg.FromViper(vpr, "conmgr")
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Threads).To(Equal(cmcfg.ThreadsDefault))
			Expect(cfg.MaxConnections).To(Equal(cmcfg.MaxConnectionsDefault))
		})
	})
})
