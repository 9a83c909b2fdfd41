package control

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
)

// HealthService is the grpc.health.v1 service name reported for playback.
const HealthService = "trackside.Sequencer"

// Health reports the sequencer state over grpc.health.v1 so orchestration
// can tell a live session from a stopped one.
type Health struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewHealth(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Health{
		server: grpc.NewServer(),
		health: health.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// ObserveState maps a sequencer state to a serving status. It is meant to
// be chained into the sequencer's state change callback.
func (h *Health) ObserveState(s sequencer.State) {
	status := healthpb.HealthCheckResponse_SERVING
	if s == sequencer.StateStopped {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(HealthService, status)
}

// Serve answers health checks on lis until ctx is done.
func (h *Health) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("grpc health listening", "addr", lis.Addr().String())
		errCh <- h.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		h.health.Shutdown()
		h.server.GracefulStop()
		return nil
	}
}
