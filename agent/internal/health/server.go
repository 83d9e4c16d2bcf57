package health

import (
	"log/slog"
	"net"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "scraper"

// Options configures a Server.
type Options struct {
	// Mode is one of: apikey | none.
	Mode   string
	Header string
	Key    string

	Logger *slog.Logger
}

// Server is a gRPC server exposing only the health service.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *slog.Logger
}

// New returns a Server reporting NOT_SERVING until SetServing(true).
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(APIKeyInterceptor(opts.Mode, opts.Header, opts.Key)),
		grpc.StreamInterceptor(APIKeyStreamInterceptor(opts.Mode, opts.Header, opts.Key)),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, logger: opts.Logger}
	s.SetServing(false)
	return s
}

// SetServing updates the reported status of the overall server and ServiceName.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("health: gRPC listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "health: serve")
	}
	return nil
}

// Stop marks the server NOT_SERVING and stops it gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
