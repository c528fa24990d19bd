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

// Package conmgr is an event driven, worker pooled framework for managing
// many concurrent file descriptors (sockets, pipes, char devices) inside a
// long running daemon.
//
// A Manager multiplexes readiness notifications from the kernel across a
// small worker pool, reassembles length prefixed RPC messages or raw byte
// streams on each connection, dispatches host callbacks (connection
// lifecycle, data arrival, signals, timers) and orchestrates orderly
// shutdown, quiescence and TLS handshakes. A single listening port can
// accept both plaintext RPC and TLS streams through a wire fingerprint on
// the first bytes of each connection.
//
// Scheduling model: one dedicated watch goroutine drives readiness polling
// and connection state transitions; N worker goroutines execute host
// callbacks popped from a FIFO queue. Both sides cooperate through a single
// manager mutex and named wakeup events. Per connection, at most one
// callback runs at a time, in arrival order; across connections no ordering
// is guaranteed.
//
// The package targets Linux (epoll, timerfd, SO_PEERCRED, SCM_RIGHTS).
package conmgr
