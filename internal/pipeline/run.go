package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/canbus-battery/internal/source"
)

// Ingest reads records from src until end of stream or ctx is done.
// It wakes every poll interval without input so a due window is still
// flushed while the bus is quiet. End of stream returns nil.
func (p *Pipeline) Ingest(ctx context.Context, src source.Source, poll <-chan time.Time) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			line, err := src.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if errors.Is(err, io.EOF) {
					p.logger.Info("frame source ended")
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("read frame source: %w", err)
			}
			p.HandleLine(line)

		case <-poll:
			p.Poll()
		}
	}
}

// RunTicker calls Tick on every tick until ctx is done or the watchdog trips.
func (p *Pipeline) RunTicker(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			if err := p.Tick(); err != nil {
				return err
			}
		}
	}
}

// Run starts ingestion and the liveness ticker and blocks until ctx is
// cancelled or the watchdog trips. The source ending does not stop the
// ticker: with nothing left to publish the watchdog eventually fires and
// the process is restarted by its supervisor.
func (p *Pipeline) Run(ctx context.Context, src source.Source) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		poll := time.NewTicker(p.cfg.Poll)
		defer poll.Stop()
		return p.Ingest(gctx, src, poll.C)
	})

	g.Go(func() error {
		tick := time.NewTicker(p.cfg.Tick)
		defer tick.Stop()
		return p.RunTicker(gctx, tick.C)
	})

	// Unblock a reader stuck in ReadLine once either activity stops.
	go func() {
		<-gctx.Done()
		src.Close()
	}()

	return g.Wait()
}
