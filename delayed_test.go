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

//go:build linux

package conmgr_test

import (
	"sync"
	"testing"
	"time"

	cmgr "github.com/nabbar/conmgr"
)

// clock skew tolerance for deadline assertions
const skew = 2 * time.Millisecond

func TestManager_DelayedWorkOrdering(t *testing.T) {
	m := testMgr(t, nil)

	if err := m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	type fired struct {
		tag string
		at  time.Time
	}

	var (
		mux  sync.Mutex
		rec  []fired
		done = make(chan struct{})
	)

	start := time.Now()

	add := func(tag string, d time.Duration) {
		err := m.AddWorkDelayedFifo(func(args cmgr.CallbackArgs, arg interface{}) {
			mux.Lock()
			defer mux.Unlock()

			rec = append(rec, fired{tag: tag, at: time.Now()})
			if len(rec) == 3 {
				close(done)
			}
		}, nil, "delayed_"+tag, int64(d/time.Second), int64(d%time.Second))

		if err != nil {
			t.Fatalf("add delayed work %s: %v", tag, err)
		}
	}

	// queued out of order on purpose
	add("5ms", 5*time.Millisecond)
	add("20ms", 20*time.Millisecond)
	add("10ms", 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("delayed work did not all fire")
	}

	mux.Lock()
	defer mux.Unlock()

	if rec[0].tag != "5ms" || rec[1].tag != "10ms" || rec[2].tag != "20ms" {
		t.Errorf("firing order = [%s %s %s], want [5ms 10ms 20ms]", rec[0].tag, rec[1].tag, rec[2].tag)
	}

	deadline := map[string]time.Duration{
		"5ms":  5 * time.Millisecond,
		"10ms": 10 * time.Millisecond,
		"20ms": 20 * time.Millisecond,
	}

	for _, f := range rec {
		if early := f.at.Sub(start); early < deadline[f.tag]-skew {
			t.Errorf("callback %s fired %v after queueing, before its %v deadline", f.tag, early, deadline[f.tag])
		}
	}
}

func TestManager_DelayedWorkSingleItem(t *testing.T) {
	m := testMgr(t, nil)

	if err := m.Run(false); err != nil {
		t.Fatalf("run: %v", err)
	}

	done := make(chan time.Time, 1)
	start := time.Now()

	if err := m.AddWorkDelayedFifo(func(args cmgr.CallbackArgs, arg interface{}) {
		done <- time.Now()
	}, nil, "delayed_single", 0, int64(30*time.Millisecond)); err != nil {
		t.Fatalf("add delayed work: %v", err)
	}

	select {
	case at := <-done:
		if d := at.Sub(start); d < 30*time.Millisecond-skew {
			t.Errorf("callback fired after %v, before its 30ms deadline", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("delayed work never fired")
	}
}
