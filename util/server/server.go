package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-connections/sockets"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 10 * time.Second
)

// Server serves the handler until the context is done.
type Server interface {
	Serve(ctx context.Context, handler http.Handler) error
}

type UnixServer struct {
	sockFile string
}

func NewUnixServer(sockFile string) *UnixServer {
	return &UnixServer{sockFile}
}

func (s *UnixServer) Serve(ctx context.Context, handler http.Handler) error {
	if err := os.MkdirAll(filepath.Dir(s.sockFile), 0755); err != nil {
		return errors.Wrapf(err, "error creating parent dir for '%s'", s.sockFile)
	}
	listener, err := sockets.NewUnixSocket(s.sockFile, 0)
	if err != nil {
		return errors.Wrapf(err, "failed opening unix socket '%s'", s.sockFile)
	}
	logrus.Infof("Unix socket server listening at %v", s.sockFile)
	return serve(ctx, listener, handler)
}

type TCPServer struct {
	addr string
}

func NewTCPServer(addrPort string) *TCPServer {
	return &TCPServer{addrPort}
}

func (s *TCPServer) Serve(ctx context.Context, handler http.Handler) error {
	listener, err := sockets.NewTCPSocket(s.addr, nil)
	if err != nil {
		return errors.Wrapf(err, "failed listening on '%s'", s.addr)
	}
	logrus.Infof("TCP server listening at %v", s.addr)
	return serve(ctx, listener, handler)
}

func serve(ctx context.Context, listener net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server error")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shut down http server")
		}
		return nil
	}
}
