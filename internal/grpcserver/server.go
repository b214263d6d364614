// Package grpcserver предоставляет gRPC-сервер трекера с сервисом grpc.health.v1.
package grpcserver

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server — gRPC-сервер, защищённый IPSubnetInterceptor.
type Server struct {
	grpc   *grpc.Server
	health *HealthReporter
	logger *zap.Logger
}

// New регистрирует сервис здоровья и перехватчики.
//
// trustedSubnet — разрешённая подсеть клиентов, nil отключает проверку.
func New(reporter *HealthReporter, trustedSubnet *net.IPNet, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			IPSubnetInterceptor(trustedSubnet),
			LoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(IPSubnetStreamInterceptor(trustedSubnet)),
	)
	healthpb.RegisterHealthServer(srv, reporter.server)
	return &Server{grpc: srv, health: reporter, logger: logger}
}

// Serve принимает соединения на lis до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc server started", zap.String("address", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Shutdown переводит сервисы в NOT_SERVING и останавливает сервер.
//
// Открытые потоки Watch ждут завершения до отмены ctx, затем закрываются принудительно.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Stop()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
}
