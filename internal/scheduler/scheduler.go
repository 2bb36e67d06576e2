package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Loop is a long-running controller. Run returns nil when ctx is cancelled and an
// error only when the loop cannot continue.
type Loop interface {
	Name() string
	Run(ctx context.Context) error
}

// Run starts every loop on its own goroutine and waits for all of them. The first
// loop to fail cancels the rest, and its error is returned.
func Run(ctx context.Context, loops ...Loop) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range loops {
		loop := loop
		g.Go(func() error {
			log.Info().Str("loop", loop.Name()).Msg("Loop started")
			if err := loop.Run(gctx); err != nil {
				log.Error().Err(err).Str("loop", loop.Name()).Msg("Loop failed")
				return fmt.Errorf("%s loop: %w", loop.Name(), err)
			}
			log.Info().Str("loop", loop.Name()).Msg("Loop exited")
			return nil
		})
	}
	return g.Wait()
}
