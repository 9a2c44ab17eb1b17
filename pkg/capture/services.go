package capture

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Service is an auxiliary task that lives as long as a capture, such as a
// status server, a metrics reporter or a signal watcher.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunWithServices runs the capture with services alongside it. Services share a
// context of their own, so a service that fails is logged and the capture
// keeps going. Services are stopped once the capture has drained.
func (p *Pipeline) RunWithServices(ctx context.Context, src Source, services ...Service) Result {
	svcCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var eg errgroup.Group
	for _, svc := range services {
		svc := svc
		eg.Go(func() error {
			err := svc.Run(svcCtx)
			if err != nil && svcCtx.Err() == nil {
				p.logger.Error().Err(err).Str("service", svc.Name).Msg("service stopped, capture continues")
			}
			return err
		})
	}

	res := p.Run(ctx, src)
	stop()
	if err := eg.Wait(); err != nil {
		p.logger.Debug().Err(err).Msg("services stopped with error")
	}
	return res
}
