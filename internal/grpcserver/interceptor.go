package grpcserver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RealIPHeader — ключ метаданных с адресом клиента за прокси.
const RealIPHeader = "x-real-ip"

// ParseTrustedSubnet разбирает подсеть в CIDR-нотации.
//
// Пустая строка означает, что ограничение по подсети выключено: возвращается nil.
func ParseTrustedSubnet(cidr string) (*net.IPNet, error) {
	cidr = strings.TrimSpace(cidr)
	if cidr == "" {
		return nil, nil
	}
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted subnet %q: %w", cidr, err)
	}
	return subnet, nil
}

// IPSubnetInterceptor проверяет IP-адрес клиента для унарных вызовов.
func IPSubnetInterceptor(trustedSubnet *net.IPNet) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := checkSubnet(ctx, trustedSubnet); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// IPSubnetStreamInterceptor проверяет IP-адрес клиента для потоковых вызовов (health Watch).
func IPSubnetStreamInterceptor(trustedSubnet *net.IPNet) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkSubnet(ss.Context(), trustedSubnet); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func checkSubnet(ctx context.Context, trustedSubnet *net.IPNet) error {
	if trustedSubnet == nil {
		return nil
	}
	ip := clientIP(ctx)
	if ip == nil {
		return status.Error(codes.PermissionDenied, "missing client ip")
	}
	if !trustedSubnet.Contains(ip) {
		return status.Error(codes.PermissionDenied, "ip not allowed")
	}
	return nil
}

// clientIP берёт адрес из x-real-ip, а без него из адреса соединения.
func clientIP(ctx context.Context) net.IP {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RealIPHeader); len(values) > 0 {
			return net.ParseIP(strings.TrimSpace(values[0]))
		}
	}
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// LoggingInterceptor логирует каждый унарный вызов так же, как config.RequestLogger логирует HTTP.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
