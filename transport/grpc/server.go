package grpc

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/shrtyk/rsm/server"
	"google.golang.org/grpc"
)

// Server hosts a Gateway behind grpc, grounded in the teacher's
// grpc_server.go: net.Listen + grpc.NewServer + Serve in a background
// goroutine, Stop for graceful shutdown.
type Server struct {
	addr     string
	logger   *slog.Logger
	grpcSrv  *grpc.Server
	gw       *server.Gateway
	listener net.Listener
}

// NewServer wraps gw behind a grpc.Server listening on addr.
func NewServer(gw *server.Gateway, addr string, log *slog.Logger) *Server {
	s := grpc.NewServer()
	s.RegisterService(&serviceDesc, gw)
	return &Server{addr: addr, logger: log, grpcSrv: s, gw: gw}
}

// Start begins serving. Returns once the listener is bound; Serve runs in
// the background.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}
	s.listener = l

	go func() {
		if err := s.grpcSrv.Serve(l); err != nil && err != grpc.ErrServerStopped {
			s.logger.Error("grpc server failed", logger.ErrAttr(err))
		}
	}()

	return nil
}

// Addr returns the listener's bound address. Only valid after Start
// returns; useful when addr was ":0" and the OS picked an ephemeral port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() error {
	s.grpcSrv.GracefulStop()
	return nil
}
