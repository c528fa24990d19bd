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

	cmcfg "github.com/nabbar/conmgr/concfg"
	cmwrk "github.com/nabbar/conmgr/work"
	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
)

// Manager is the connection manager facade.
//
// A manager is created idle: register descriptors and work, then call Run.
// Run(true) turns the calling goroutine into the watch loop until shutdown;
// Run(false) spawns the watch and returns. All methods are safe for
// concurrent use.
type Manager interface {
	// Run executes the watch loop. When blocking, the call returns after
	// shutdown completed and reports the first recorded error if exit on
	// error is set. When non blocking, the watch is spawned once; later
	// blocking calls wait for it.
	Run(blocking bool) liberr.Error

	// RequestShutdown sets the shutdown flag and wakes the watch: every
	// connection is closed, pending work is cancelled and still handed to
	// workers so callbacks can release resources.
	RequestShutdown()

	// IsShutdownRequested reports whether shutdown was requested.
	IsShutdownRequested() bool

	// Fini requests shutdown, waits for the watch to return and releases
	// every resource. The manager is unusable afterwards.
	Fini()

	// ProcessFd hands an already open descriptor pair to the manager.
	// The input and output descriptor may be equal. The OnConnection
	// callback is queued immediately.
	ProcessFd(t ConType, inputFd, outputFd int, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error)

	// ProcessFdListen hands an already listening descriptor to the manager.
	ProcessFdListen(fd int, t ConType, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error)

	// CreateListenSocket resolves, binds and listens on the given address
	// ("tcp" host:port or "unix" path), then registers it.
	CreateListenSocket(t ConType, network, address string, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error)

	// CreateListenSockets creates one listener per address.
	CreateListenSockets(t ConType, network string, addresses []string, events *Events, flags Flags, arg interface{}) liberr.Error

	// CreateConnectSocket starts a non blocking connect to the given
	// address and registers the pending connection; OnConnection runs once
	// the connect completes.
	CreateConnectSocket(t ConType, network, address string, events *Events, flags Flags, arg interface{}) (*Fd, liberr.Error)

	// AddWork queues a unit of work classified by its control dependency:
	// time delayed, signal subscribed, write complete gated, connection
	// ordered, or immediately runnable.
	AddWork(con *Fd, fct WorkFunc, arg interface{}, name string, ctl cmwrk.Control) liberr.Error

	// AddWorkFifo queues immediately runnable work.
	AddWorkFifo(fct WorkFunc, arg interface{}, name string) liberr.Error

	// AddWorkConFifo queues work ordered after the connection's pending
	// work; at most one item per connection runs at a time.
	AddWorkConFifo(con *Fd, fct WorkFunc, arg interface{}, name string) liberr.Error

	// AddWorkConWriteComplete queues work deferred until the connection's
	// outgoing list fully drained.
	AddWorkConWriteComplete(con *Fd, fct WorkFunc, arg interface{}, name string) liberr.Error

	// AddWorkDelayedFifo queues work deferred until the given relative
	// delay elapsed.
	AddWorkDelayedFifo(fct WorkFunc, arg interface{}, name string, delaySec, delayNsec int64) liberr.Error

	// AddWorkSignal subscribes work to an OS signal: each delivery of the
	// signal runs the callback once.
	AddWorkSignal(sig int, fct WorkFunc, arg interface{}, name string) liberr.Error

	// Quiesce pauses scheduling: new work may queue, in-flight work
	// completes, nothing new is dispatched. The call returns once quiesce
	// became active or the configured timeout expired.
	Quiesce() liberr.Error

	// Unquiesce resumes scheduling.
	Unquiesce()

	// SetExitOnError makes Run return the first recorded error.
	SetExitOnError(flag bool)

	// GetExitOnError reports the exit on error policy.
	GetExitOnError() bool

	// GetError returns the first non recoverable error recorded.
	GetError() liberr.Error

	// SetTLS selects the TLS provider by registered name and the TLS
	// configuration used for every TLS connection.
	SetTLS(provider string, cfg libtls.TLSConfig) liberr.Error

	// SetCodec selects the RPC payload codec by registered name.
	SetCodec(name string) liberr.Error

	// Connections returns the tracked non listening connection count.
	Connections() int

	// Reset forces an inherited manager to a terminal default state: lists
	// are emptied and scheduling stops, without closing descriptors or
	// running callbacks. Meant for a forked child that inherited a manager;
	// the child then creates a fresh manager with New instead of reusing
	// this one. Never call it in the parent process.
	Reset()
}

// New builds an idle manager with the given configuration. The context
// bounds the manager's lifetime: its end requests shutdown.
func New(ctx context.Context, cfg cmcfg.Config, cbk Callbacks, log liblog.FuncLog) (Manager, liberr.Error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg.Clamp()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return newMgr(ctx, cfg, cbk, log)
}
