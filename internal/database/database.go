// Package database provides the connection pool that bridges the rest of the
// application to SQLite. Each pool worker is a goroutine that exclusively
// owns one database connection for its entire lifetime and serially executes
// closures sent to it over a shared dispatch channel. Callers never touch a
// connection directly; they submit work through [DB.Call] or one of the typed
// helpers built on top of it ([Get], [All], [DB.Execute], [DB.Transaction]).
//
// SQLite serializes writers itself, so the pool needs no locking around
// connections: a connection is only ever touched by the worker that opened
// it.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrClosed is returned by Call (and everything layered on it) once the pool
// has been closed.
var ErrClosed = errors.New("database: pool is closed")

// InitFunc runs once per connection right after it is opened, before the
// worker starts serving. Useful for PRAGMAs that must be set on every
// connection.
type InitFunc func(conn *sqlite.Conn) error

// job is a unit of work executed by exactly one worker against its
// connection. The closure is responsible for delivering its own result, the
// pool only moves it.
type job func(conn *sqlite.Conn)

// message is the control message flowing over the dispatch channel: either a
// job or a terminate signal. One terminate message stops exactly one worker,
// so shutdown enqueues one per live worker. This mirrors a closed channel
// without the multi-producer send-on-closed panic hazard.
type message struct {
	run       job
	terminate bool
}

// Builder configures and opens a [DB]. Obtain one from [File].
type Builder struct {
	path        string
	connections int
	init        InitFunc
}

// File returns a builder for the database at the given file path.
//
// The path ":memory:" denotes an in-memory database; note that with more
// than one connection each worker gets its own private memory database, so
// :memory: is only useful together with Connections(1).
func File(path string) *Builder {
	return &Builder{path: path, connections: 10}
}

// Connections configures how many connections to open. Each connection is
// served by its own worker goroutine.
func (b *Builder) Connections(n int) *Builder {
	b.connections = n
	return b
}

// WithInit configures a function to run once on every connection after it is
// opened.
func (b *Builder) WithInit(fn InitFunc) *Builder {
	b.init = fn
	return b
}

// Open starts the worker goroutines and blocks until every one of them has
// either opened and initialized its connection or failed. If any worker
// fails, Open terminates the workers that did start, waits for them to exit,
// and returns the failure.
func (b *Builder) Open() (*DB, error) {
	if b.connections < 1 {
		return nil, fmt.Errorf("database: pool size must be at least 1, got %d", b.connections)
	}

	db := &DB{
		jobs:    make(chan message, b.connections),
		quit:    make(chan struct{}),
		workers: b.connections,
	}
	results := make(chan error, b.connections)

	slog.Debug("opening database pool", "path", b.path, "connections", b.connections)

	for i := 0; i < b.connections; i++ {
		w := &worker{id: i, path: b.path, init: b.init}
		db.wg.Add(1)
		go w.run(&db.wg, db.jobs, results)
	}

	var firstErr error
	for i := 0; i < b.connections; i++ {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		// Workers that did start have no owner to shut them down, so do it
		// here: a stray worker would keep the file (and its WAL) open with
		// nobody left to close it.
		db.shutdown()
		return nil, firstErr
	}
	return db, nil
}

// DB is the handle to the connection pool. It is safe for concurrent use by
// any number of goroutines; all of them share the same set of workers.
//
// Closing the handle is the only shutdown trigger. After Close, every worker
// has finished its in-flight job and exited.
type DB struct {
	jobs    chan message
	quit    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	workers int
}

// Call executes fn on one of the pool's connections and returns its error.
// This is the primitive everything else is built on.
//
// The calling goroutine blocks until a worker has produced the result. If
// ctx is cancelled while waiting, Call returns early but the job, if already
// enqueued, still runs to completion on its worker; only the reply goes
// unread. Jobs submitted from the same goroutine that land on the same
// worker execute in submission order; there is no pool-wide ordering.
//
// A panic inside fn is caught at the worker boundary and returned as a
// [*PanicError] instead of killing the worker.
//
// Call returns [ErrClosed] once the pool is closed. A Call racing Close may
// instead block until ctx is cancelled; treat Close as a barrier and do not
// submit past it.
func (db *DB) Call(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	reply := make(chan error, 1)
	msg := message{run: func(conn *sqlite.Conn) {
		reply <- runJob(conn, fn)
	}}

	select {
	case db.jobs <- msg:
	case <-db.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs the query with the given parameters on a connection from the
// pool and reports the number of rows affected.
func (db *DB) Execute(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := db.Call(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
		n = conn.Changes()
		return nil
	})
	return n, err
}

// ExecuteBatch runs a script of semicolon-separated statements on a
// connection from the pool.
func (db *DB) ExecuteBatch(ctx context.Context, script string) error {
	return db.Call(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, script, nil)
	})
}

// Close shuts the pool down: it stops accepting new calls, lets every worker
// finish the job it is executing, and waits for all of them to exit. Workers
// never abandon a job mid-flight, so anything enqueued before Close still
// completes. Safe to call more than once.
func (db *DB) Close() {
	slog.Debug("closing database pool", "connections", db.workers)
	db.shutdown()
	slog.Debug("database pool closed")
}

// shutdown closes the quit gate, enqueues one terminate message per worker
// and joins them. Terminate messages sit behind any jobs already in the
// channel, so pending work drains first.
func (db *DB) shutdown() {
	db.once.Do(func() {
		close(db.quit)
		for i := 0; i < db.workers; i++ {
			db.jobs <- message{terminate: true}
		}
	})
	db.wg.Wait()
}

// runJob executes fn against conn, converting a panic into an error so a
// faulty closure cannot silently strand its caller without a reply.
func runJob(conn *sqlite.Conn, fn func(conn *sqlite.Conn) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return fn(conn)
}

// worker owns one connection and serves jobs from the dispatch channel until
// it dequeues a terminate message.
type worker struct {
	id   int
	path string
	init InitFunc
}

func (w *worker) run(wg *sync.WaitGroup, jobs <-chan message, ready chan<- error) {
	defer wg.Done()

	conn, err := sqlite.OpenConn(w.path,
		sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL|sqlite.OpenURI|sqlite.OpenNoMutex)
	if err != nil {
		slog.Debug("database worker failed to open connection", "worker", w.id, "error", err)
		ready <- fmt.Errorf("open %s: %w", w.path, err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Warn("database worker failed to close connection", "worker", w.id, "error", err)
		}
	}()

	if w.init != nil {
		if err := w.init(conn); err != nil {
			slog.Debug("database worker failed to initialize connection", "worker", w.id, "error", err)
			ready <- fmt.Errorf("initialize connection: %w", err)
			return
		}
	}

	ready <- nil
	slog.Debug("database worker serving", "worker", w.id)

	for {
		msg := <-jobs
		if msg.terminate {
			slog.Debug("database worker terminating", "worker", w.id)
			return
		}
		msg.run(conn)
	}
}
