package database

import (
	"fmt"
	"net"

	"marketplace_chat_service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServer grpc server 只提供 grpc.health.v1
type HealthServer struct {
	Server *grpc.Server
	Health *health.Server
	lis    net.Listener
}

// NewHealthServer listen on addr and register health service
func NewHealthServer(addr string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	return &HealthServer{Server: s, Health: h, lis: lis}, nil
}

// Addr actual listen address
func (h *HealthServer) Addr() string {
	return h.lis.Addr().String()
}

// SetServing 更新 service 狀態, 空字串為整體狀態
func (h *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.Health.SetServingStatus(service, status)
}

// Serve blocking
func (h *HealthServer) Serve() error {
	logger.Log.Info("grpc health server listening", zap.String("addr", h.Addr()))
	return h.Server.Serve(h.lis)
}

// Stop 先標記 NOT_SERVING 再 graceful stop
func (h *HealthServer) Stop() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}
