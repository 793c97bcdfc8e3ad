package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/services"
	"google.golang.org/grpc"
)

// Authenticator resolves the caller behind an access token. A nil Principal
// with a nil error means the token is not usable.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*services.Principal, error)
}

type GRPCServer struct {
	address       string
	auth          *services.AuthService
	sessions      *services.SessionService
	profile       *services.ProfileService
	authenticator Authenticator
	logger        logging.Logger
}

var _ AuthServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, as *services.AuthService, ss *services.SessionService, ps *services.ProfileService) *GRPCServer {
	if l == nil {
		l = logging.Discard()
	}
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		auth:          as,
		sessions:      ss,
		profile:       ps,
		authenticator: as,
	}
}

// NewServer builds a grpc.Server with the auth interceptor installed and the
// service registered. Run uses it; tests serve it over bufconn.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.authInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterAuthServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
