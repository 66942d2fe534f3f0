package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Config struct {
	EnableHTTP       bool          `envconfig:"SERVER_ENABLE_HTTP" default:"true" yaml:"enable_http"`
	EnableGRPC       bool          `envconfig:"SERVER_ENABLE_GRPC" default:"true" yaml:"enable_grpc"`
	HTTPPort         string        `envconfig:"HTTP_PORT" default:"8080" yaml:"http_port" validate:"required,numeric"`
	GRPCPort         string        `envconfig:"GRPC_PORT" default:"9090" yaml:"grpc_port" validate:"required,numeric"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s" yaml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s" yaml:"http_write_timeout"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout"`

	MTLSEnabled    bool   `envconfig:"MTLS_ENABLED" default:"false" yaml:"mtls_enabled"`
	MTLSCACert     string `envconfig:"MTLS_CA_CERT" yaml:"mtls_ca_cert" validate:"required_if=MTLSEnabled true"`
	MTLSServerCert string `envconfig:"MTLS_SERVER_CERT" yaml:"mtls_server_cert" validate:"required_if=MTLSEnabled true"`
	MTLSServerKey  string `envconfig:"MTLS_SERVER_KEY" yaml:"mtls_server_key" validate:"required_if=MTLSEnabled true"`
}

// Server runs the HTTP API and a gRPC server carrying the standard health
// service.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	handler http.Handler
	grpcSrv *grpc.Server
	health  *grpchealth.Server
	httpSrv *http.Server
}

// New registers the gRPC health service on grpcSrv. A nil grpcSrv gets a
// default one.
func New(cfg Config, logger *slog.Logger, handler http.Handler, grpcSrv *grpc.Server) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if grpcSrv == nil {
		grpcSrv = grpc.NewServer()
	}
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)

	return &Server{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		handler: handler,
		grpcSrv: grpcSrv,
		health:  hs,
	}
}

// SetServing reports the overall gRPC health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Start blocks until ctx is done or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 2)

	if s.cfg.EnableHTTP {
		s.httpSrv = &http.Server{
			Addr:              ":" + s.cfg.HTTPPort,
			Handler:           s.handler,
			ReadTimeout:       s.cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      s.cfg.HTTPWriteTimeout,
			IdleTimeout:       120 * time.Second,
		}

		if s.cfg.MTLSEnabled {
			tlsConfig, err := loadMTLSConfig(s.cfg.MTLSCACert)
			if err != nil {
				return fmt.Errorf("server: failed to load mTLS config: %w", err)
			}
			s.httpSrv.TLSConfig = tlsConfig
		}

		go func() {
			s.logger.Info("HTTP server starting", "port", s.cfg.HTTPPort, "mtls", s.cfg.MTLSEnabled)
			var err error
			if s.cfg.MTLSEnabled {
				err = s.httpSrv.ListenAndServeTLS(s.cfg.MTLSServerCert, s.cfg.MTLSServerKey)
			} else {
				err = s.httpSrv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("server: http failed: %w", err)
			}
		}()
	}

	if s.cfg.EnableGRPC {
		lis, err := net.Listen("tcp", ":"+s.cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("server: failed to listen grpc: %w", err)
		}
		go func() {
			s.logger.Info("gRPC server starting", "port", s.cfg.GRPCPort)
			if err := s.grpcSrv.Serve(lis); err != nil {
				errChan <- fmt.Errorf("server: grpc failed: %w", err)
			}
		}()
	}

	s.SetServing(true)

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down servers")
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return err
	}
}

func (s *Server) shutdown() error {
	s.health.Shutdown()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		if err = s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP shutdown error", "error", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		s.grpcSrv.Stop()
	}

	return err
}

func loadMTLSConfig(caPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("could not read CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to append CA cert")
	}

	return &tls.Config{
		ClientCAs:  caCertPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		MinVersion: tls.VersionTLS12,
	}, nil
}
