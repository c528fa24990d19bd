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

package events_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cmevt "github.com/nabbar/conmgr/events"
)

var _ = Describe("Event", func() {
	Context("creation", func() {
		It("should keep the given name", func() {
			e := cmevt.New("watch_sleep")
			Expect(e.Name()).To(Equal("watch_sleep"))
		})

		It("should start with a zero wakeup count", func() {
			e := cmevt.New("worker_sleep")
			Expect(e.Count()).To(BeZero())
		})
	})

	Context("signal", func() {
		It("should be remembered when nobody waits", func() {
			e := cmevt.New("watch_sleep")
			e.Signal()
			Expect(e.WaitTimeout(0)).To(BeTrue())
		})

		It("should coalesce multiple pending signals into one wakeup", func() {
			e := cmevt.New("watch_sleep")
			e.Signal()
			e.Signal()
			e.Signal()
			Expect(e.WaitTimeout(0)).To(BeTrue())
			Expect(e.WaitTimeout(0)).To(BeFalse())
		})

		It("should wake a blocked waiter", func() {
			e := cmevt.New("watch_sleep")

			done := make(chan struct{})
			go func() {
				defer close(done)
				e.Wait()
			}()

			time.Sleep(10 * time.Millisecond)
			e.Signal()
			Eventually(done, time.Second).Should(BeClosed())
		})
	})

	Context("broadcast", func() {
		It("should wake every blocked waiter", func() {
			e := cmevt.New("worker_sleep")

			var wg sync.WaitGroup
			done := make(chan struct{})

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					e.Wait()
				}()
			}

			go func() {
				wg.Wait()
				close(done)
			}()

			time.Sleep(20 * time.Millisecond)
			e.Broadcast()
			Eventually(done, time.Second).Should(BeClosed())
		})

		It("should be lost when nobody waits", func() {
			e := cmevt.New("worker_return")
			e.Broadcast()
			Expect(e.WaitTimeout(0)).To(BeFalse())
		})
	})

	Context("wait with timeout", func() {
		It("should return false after the delay without wakeup", func() {
			e := cmevt.New("watch_sleep")
			start := time.Now()
			Expect(e.WaitTimeout(25 * time.Millisecond)).To(BeFalse())
			Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
		})

		It("should return true when signaled before the delay", func() {
			e := cmevt.New("watch_sleep")

			go func() {
				time.Sleep(10 * time.Millisecond)
				e.Signal()
			}()

			Expect(e.WaitTimeout(time.Second)).To(BeTrue())
		})
	})

	Context("wait with context", func() {
		It("should return false when the context ends first", func() {
			e := cmevt.New("watch_return")
			ctx, cnl := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cnl()
			Expect(e.WaitContext(ctx)).To(BeFalse())
		})

		It("should return true on wakeup", func() {
			e := cmevt.New("watch_return")

			go func() {
				time.Sleep(10 * time.Millisecond)
				e.Broadcast()
			}()

			Expect(e.WaitContext(context.Background())).To(BeTrue())
		})
	})
})
