package producer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const openRetryInterval = 50 * time.Millisecond

// SinkOptions controls how the transport at a path is created and opened.
type SinkOptions struct {
	// CreateFIFO creates a named pipe when nothing exists at the path.
	// Otherwise a regular file is created.
	CreateFIFO bool
	// OpenTimeout bounds the wait for a reader to attach to a FIFO.
	OpenTimeout time.Duration
}

// OpenSink opens path for writing. For a FIFO the open is retried until the
// log driver attaches a reader, so it can be cancelled through ctx instead of
// blocking inside open(2). A regular file is truncated so frames from an
// earlier run never trail the new ones.
func OpenSink(ctx context.Context, path string, opts SinkOptions) (*os.File, error) {
	if err := Prepare(path, opts.CreateFIFO); err != nil {
		return nil, err
	}
	fifo, err := IsFIFO(path)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}
	flags := unix.O_WRONLY | unix.O_NONBLOCK | unix.O_CLOEXEC
	if !fifo {
		flags |= unix.O_TRUNC
	}

	if opts.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.OpenTimeout)
		defer cancel()
	}

	attempts := 0
	fd, err := backoff.Retry(ctx, func() (int, error) {
		attempts++
		fd, err := unix.Open(path, flags, 0)
		if err == nil {
			return fd, nil
		}
		if errors.Is(err, unix.ENXIO) || errors.Is(err, unix.EINTR) {
			// no reader on the fifo yet
			return -1, err
		}
		return -1, backoff.Permanent(err)
	}, backoff.WithBackOff(backoff.NewConstantBackOff(openRetryInterval)), backoff.WithMaxElapsedTime(0))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waiting for a reader on %s: %w", path, ctxErr)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("setting %s blocking: %w", path, err)
	}

	zap.S().Named("producer").Debugw("sink opened", "path", path, "attempts", attempts)
	return os.NewFile(uintptr(fd), path), nil
}

// Prepare creates the transport at path when missing: a FIFO when createFIFO
// is set, else an empty regular file. An existing path is left as is; a
// regular file where a FIFO was asked for is logged.
func Prepare(path string, createFIFO bool) error {
	if fi, err := os.Stat(path); err == nil {
		if createFIFO && fi.Mode()&os.ModeNamedPipe == 0 {
			zap.S().Named("producer").Warnw("sink is not a fifo, writing to it as a regular file", "path", path, "mode", fi.Mode().String())
		}
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if createFIFO {
		if err := unix.Mkfifo(path, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
			return fmt.Errorf("creating fifo %s: %w", path, err)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return f.Close()
}

// IsFIFO reports whether path is a named pipe.
func IsFIFO(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.Mode()&os.ModeNamedPipe != 0, nil
}
