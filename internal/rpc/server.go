package rpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/log/middleware"
)

// Service names reported by the health endpoint.
const (
	RequestLoopService = "wallet.RequestLoop"
	WalletService      = ""
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Server is the gRPC endpoint of the wallet. It serves the standard health
// protocol, with one status per watched component.
type Server struct {
	address string
	grpc    *grpc.Server
	health  *health.Server
}

func NewServer(address string) *Server {
	if address == "" {
		address = ":9090"
	}
	s := &Server{
		address: address,
		grpc: grpc.NewServer(
			grpc.ChainUnaryInterceptor(middleware.RecoveredUnaryGRPCServerLog(
				middleware.NoUnaryRequestParamsLog(healthCheckMethod),
			)),
			grpc.ChainStreamInterceptor(middleware.RecoveredStreamServerLog()),
		),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

func (s *Server) Apply(c *config.Configuration) {
	if c.Server.GRPCAddress != "" {
		s.address = c.Server.GRPCAddress
	}
}

func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Watch reports service as serving until stopped is closed.
func (s *Server) Watch(ctx context.Context, service string, stopped <-chan struct{}) {
	s.SetServing(service, true)
	go func() {
		select {
		case <-stopped:
			log.Warnf("%v stopped, reporting not serving", service)
			s.SetServing(service, false)
		case <-ctx.Done():
		}
	}()
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.SetServing(WalletService, true)
	return s.grpc.Serve(lis)
}

// Start listens on the configured address and stops when ctx is done.
func (s *Server) Start(ctx context.Context) {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		log.Error(errors.WrapfAndReport(err, "listen grpc on %v", s.address))
		return
	}
	go func() {
		log.Infof("grpc server listening on %v", s.address)
		if err := s.Serve(lis); err != nil {
			log.Error(errors.WrapAndReport(err, "grpc server"))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
