// Verb implementations. Each verb parses its own flags, loads the runtime
// environment, and returns an exit code.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/elock"
	"tools.zach/dev/lockgate/fairlock"
	"tools.zach/dev/lockgate/internal/logger"
	"tools.zach/dev/lockgate/internal/update"
	"tools.zach/dev/lockgate/internal/watcher"
)

// lockType converts the -shared flag into a lock type.
func lockType(shared bool) lockgate.Type {
	if shared {
		return lockgate.Shared
	}
	return lockgate.Exclusive
}

// ///////////////////////////////////////////////
// hold
// ///////////////////////////////////////////////

// cmdHold acquires an ephemeral lock and holds it until stdin closes or an
// interrupt arrives. "acquired" and "released" lines on stdout let a parent
// process sequence against the lock without polling.
func cmdHold(args []string) int {
	fs, dataDir := newFlagSet("hold")
	shared := fs.Bool("shared", false, "Acquire a shared lock instead of exclusive")
	try := fs.Bool("try", false, "Fail with exit 3 instead of blocking")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "lockgate hold: expected exactly one path")
		return exitUsage
	}
	path := fs.Arg(0)

	e, err := loadEnv(*dataDir)
	if err != nil {
		return fail(err)
	}
	defer e.close()
	if err := e.checkDenied(path); err != nil {
		return fail(err)
	}
	go update.Check(resolveVersion())

	t := lockType(*shared)
	var lock *elock.Lock
	if *try {
		lock, err = elock.TryAcquire(path, t)
	} else {
		lock, err = elock.AcquireWith(path, t, elock.Options{MaxRetries: e.cfg.Lock.RetryMax})
	}
	if errors.Is(err, lockgate.ErrWouldBlock) {
		fmt.Println("busy")
		return exitBusy
	}
	if err != nil {
		return fail(err)
	}
	slog.Info("lock acquired", "path", path, "type", t)
	fmt.Println("acquired")

	waitForReleaseSignal()

	if err := lock.Release(); err != nil {
		return fail(err)
	}
	slog.Info("lock released", "path", path)
	fmt.Println("released")
	return exitOK
}

// waitForReleaseSignal blocks until stdin reaches EOF or an interrupt
// arrives, whichever comes first.
func waitForReleaseSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	eof := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, os.Stdin)
		close(eof)
	}()

	select {
	case <-sig:
	case <-eof:
	}
}

// ///////////////////////////////////////////////
// try
// ///////////////////////////////////////////////

// cmdTry acquires and immediately releases, reporting whether the lock was
// free at that instant.
func cmdTry(args []string) int {
	fs, dataDir := newFlagSet("try")
	shared := fs.Bool("shared", false, "Probe with a shared lock instead of exclusive")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "lockgate try: expected exactly one path")
		return exitUsage
	}
	path := fs.Arg(0)

	e, err := loadEnv(*dataDir)
	if err != nil {
		return fail(err)
	}
	defer e.close()
	if err := e.checkDenied(path); err != nil {
		return fail(err)
	}

	lock, err := elock.TryAcquire(path, lockType(*shared))
	if errors.Is(err, lockgate.ErrWouldBlock) {
		fmt.Println("busy")
		return exitBusy
	}
	if err != nil {
		return fail(err)
	}
	if err := lock.Release(); err != nil {
		return fail(err)
	}
	fmt.Println("free")
	return exitOK
}

// ///////////////////////////////////////////////
// probe
// ///////////////////////////////////////////////

// cmdProbe takes a shared contention-aware lock and reports whether anyone
// is waiting with an incompatible request at this instant.
func cmdProbe(args []string) int {
	fs, dataDir := newFlagSet("probe")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "lockgate probe: expected exactly one path")
		return exitUsage
	}
	path := fs.Arg(0)

	e, err := loadEnv(*dataDir)
	if err != nil {
		return fail(err)
	}
	defer e.close()
	if err := e.checkDenied(path); err != nil {
		return fail(err)
	}

	l, err := fairlock.Open(path)
	if err != nil {
		return fail(err)
	}
	defer l.Close()
	if err := l.Lock(lockgate.Shared); err != nil {
		return fail(err)
	}
	contended, err := l.Contended()
	if err != nil {
		return fail(err)
	}
	if err := l.Unlock(); err != nil {
		return fail(err)
	}
	if contended {
		fmt.Println("contended")
		return exitBusy
	}
	fmt.Println("clear")
	return exitOK
}

// ///////////////////////////////////////////////
// wait
// ///////////////////////////////////////////////

// cmdWait blocks until the lock file disappears, meaning every holder has
// released and the last one cleaned up.
func cmdWait(args []string) int {
	fs, dataDir := newFlagSet("wait")
	timeout := fs.Duration("timeout", 0, "Give up after this long (0 waits forever)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "lockgate wait: expected exactly one path")
		return exitUsage
	}
	path := fs.Arg(0)

	e, err := loadEnv(*dataDir)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}
	err = watcher.WaitRemoved(ctx, path)
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Println("busy")
		return exitBusy
	}
	if err != nil {
		return fail(err)
	}
	fmt.Println("gone")
	return exitOK
}

// ///////////////////////////////////////////////
// logs
// ///////////////////////////////////////////////

// cmdLogs prints the tail of the rotating log file.
func cmdLogs(args []string) int {
	fs, dataDir := newFlagSet("logs")
	n := fs.Int("n", 50, "Number of lines to print")
	fs.Parse(args)

	e, err := loadEnv(*dataDir)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	out, err := logger.Tail(e.dataDir.Log(), *n)
	if err != nil {
		return fail(err)
	}
	if out != "" {
		fmt.Println(out)
	}
	return exitOK
}
