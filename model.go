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

package conmgr

import (
	"context"
	"os"
	"sync"

	cmcfg "github.com/nabbar/conmgr/concfg"
	cmcdc "github.com/nabbar/conmgr/codec"
	cmevt "github.com/nabbar/conmgr/events"
	cmpol "github.com/nabbar/conmgr/polling"
	cmtls "github.com/nabbar/conmgr/conntls"
	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
)

type mgr struct {
	// m is the single process wide mutex serializing every state mutation.
	// It is held during enqueue, dispatch selection and event demultiplexing
	// and released across blocking calls (poll, read, write, callbacks).
	m sync.Mutex

	ctx context.Context
	cnl context.CancelFunc

	cfg cmcfg.Config
	cbk Callbacks
	log liblog.FuncLog

	pol cmpol.Poller

	// connection lists; a connection lives in exactly one of them
	cons     []*Fd
	listen   []*Fd
	complete []*Fd

	// fdcon maps registered descriptors to their connection for event
	// demultiplexing
	fdcon map[int]*Fd

	// run is the runnable work queue workers pop from; delayed and sigs are
	// the pending lists for time delayed and signal subscribed work
	run     []*workItem
	delayed []*workItem
	sigs    []*workItem

	// tfd is the kernel timer descriptor armed with the shortest delayed
	// work deadline, watched by the poller
	tfd int

	// signal self-pipe state
	sigPipeR int
	sigPipeW int
	sigCon   *Fd
	sigC     chan os.Signal
	sigStop  context.CancelFunc
	sigWatch map[int]bool

	// worker pool accounting
	wrkCount  int
	wrkActive int

	evtWatchSleep   cmevt.Event
	evtWatchReturn  cmevt.Event
	evtWorkerSleep  cmevt.Event
	evtWorkerReturn cmevt.Event
	evtQuiesceOn    cmevt.Event
	evtQuiesceOff   cmevt.Event

	quiesceReq bool
	quiesceAct bool

	shutdown bool
	closing  bool
	drained  bool
	finished bool
	watchRun bool

	err         liberr.Error
	exitOnError bool

	prov   cmtls.Provider
	tlsCfg libtls.TLSConfig

	cdc cmcdc.Codec
}

func newMgr(ctx context.Context, cfg cmcfg.Config, cbk Callbacks, log liblog.FuncLog) (Manager, liberr.Error) {
	x, cnl := context.WithCancel(ctx)

	mode := cmpol.ModeEpoll
	if cfg.UsePoll {
		mode = cmpol.ModePoll
	}

	pol, err := cmpol.New(mode, log)
	if err != nil {
		cnl()
		return nil, err
	}

	o := &mgr{
		ctx:      x,
		cnl:      cnl,
		cfg:      cfg,
		cbk:      cbk,
		log:      log,
		pol:      pol,
		fdcon:    make(map[int]*Fd),
		tfd:      -1,
		sigPipeR: -1,
		sigPipeW: -1,
		sigWatch: make(map[int]bool),

		evtWatchSleep:   cmevt.New("watch_sleep"),
		evtWatchReturn:  cmevt.New("watch_return"),
		evtWorkerSleep:  cmevt.New("worker_sleep"),
		evtWorkerReturn: cmevt.New("worker_return"),
		evtQuiesceOn:    cmevt.New("on_start_quiesced"),
		evtQuiesceOff:   cmevt.New("on_stop_quiesced"),

		cdc: cmcdc.Get(cmcdc.NamePassthrough),
	}

	if e := o.initDelayed(); e != nil {
		_ = pol.Close()
		cnl()
		return nil, e
	}

	o.wrkCount = cfg.Threads
	for i := 0; i < o.wrkCount; i++ {
		go o.worker(i)
	}

	// the context end counts as a shutdown request
	go func() {
		<-x.Done()
		o.RequestShutdown()
	}()

	o.logger().Entry(loglvl.InfoLevel, "connection manager initialized").
		FieldAdd("threads", cfg.Threads).
		FieldAdd("max_connections", cfg.MaxConnections).
		FieldAdd("poller", pol.Mode().String()).
		Log()

	return o, nil
}

func (o *mgr) logger() liblog.Logger {
	if o.log == nil {
		return liblog.GetDefault()
	} else if l := o.log(); l == nil {
		return liblog.GetDefault()
	} else {
		return l
	}
}

// wakeWatch signals the watch sleep event and interrupts a blocked poll.
func (o *mgr) wakeWatch() {
	o.evtWatchSleep.Signal()
	o.pol.Interrupt()
}

// wakeWatchLocked is wakeWatch, callable with the manager mutex held.
func (o *mgr) wakeWatchLocked() {
	o.evtWatchSleep.Signal()
	o.pol.Interrupt()
}

func (o *mgr) SetTLS(provider string, cfg libtls.TLSConfig) liberr.Error {
	if cfg == nil {
		return ErrorParamEmpty.Error(nil)
	}

	prv := cmtls.Get(provider)
	if prv == nil {
		return ErrorTLSProvider.Error(nil)
	}

	o.m.Lock()
	defer o.m.Unlock()

	o.prov = prv
	o.tlsCfg = cfg

	return nil
}

func (o *mgr) SetCodec(name string) liberr.Error {
	cdc := cmcdc.Get(name)
	if cdc == nil {
		return ErrorCodecMissing.Error(nil)
	}

	o.m.Lock()
	defer o.m.Unlock()

	o.cdc = cdc

	return nil
}

func (o *mgr) SetExitOnError(flag bool) {
	o.m.Lock()
	defer o.m.Unlock()

	o.exitOnError = flag
}

func (o *mgr) GetExitOnError() bool {
	o.m.Lock()
	defer o.m.Unlock()

	return o.exitOnError
}

func (o *mgr) GetError() liberr.Error {
	o.m.Lock()
	defer o.m.Unlock()

	return o.err
}

func (o *mgr) Connections() int {
	o.m.Lock()
	defer o.m.Unlock()

	return len(o.cons)
}

// recordError stores the first non recoverable error and honors the exit on
// error policy. Caller holds the manager mutex.
func (o *mgr) recordError(err liberr.Error) {
	if err == nil {
		return
	}

	if o.err == nil {
		o.err = err
	}

	if o.exitOnError && !o.shutdown {
		o.shutdown = true
		o.wakeWatchLocked()
		o.evtWorkerSleep.Broadcast()
	}
}

// listRemove drops the first occurrence of con from the given list.
func listRemove(lst []*Fd, con *Fd) []*Fd {
	for i, c := range lst {
		if c == con {
			return append(lst[:i], lst[i+1:]...)
		}
	}

	return lst
}
