package chattest

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/omochice/hybrid-chat/internal/auth"
	"github.com/omochice/hybrid-chat/pkg/protocol/pb"
)

// Option configures a Server.
type Option func(*Server)

// WithToken makes both channels require "Bearer <token>".
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithSecret makes both channels require a token signed with secret, as
// issued by auth.Issue. The token's username names the client.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// Server serves the push channel at /ws and the chat RPC service, both
// backed by one Store.
type Server struct {
	Hub   *Hub
	Store *Store
	RPC   *Service

	token  string
	secret []byte

	pushLn net.Listener
	rpcLn  net.Listener
	http   *http.Server
	grpc   *grpc.Server
	wg     sync.WaitGroup
}

// New creates a server that is not listening yet.
func New(opts ...Option) *Server {
	store := NewStore()
	s := &Server{
		Hub:   NewHub(store),
		Store: store,
		RPC:   NewService(store),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on both addresses and serves in the background.
// Use "127.0.0.1:0" to pick free ports.
func (s *Server) Start(pushAddr, rpcAddr string) error {
	pushLn, err := net.Listen("tcp", pushAddr)
	if err != nil {
		return errors.Wrap(err, "failed to start push server")
	}
	rpcLn, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		_ = pushLn.Close()
		return errors.Wrap(err, "failed to start rpc server")
	}
	s.pushLn, s.rpcLn = pushLn, rpcLn

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.http = &http.Server{Handler: mux}

	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.authorize))
	pb.RegisterChatServiceServer(s.grpc, s.RPC)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(pushLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("component", "chattest").Err(err).Msg("push server stopped")
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.grpc.Serve(rpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error().Str("component", "chattest").Err(err).Msg("rpc server stopped")
		}
	}()

	log.Info().Str("component", "chattest").
		Str("push", pushLn.Addr().String()).
		Str("rpc", rpcLn.Addr().String()).
		Msg("chat server started")
	return nil
}

// Stop closes every client and both listeners.
func (s *Server) Stop() {
	if s.http != nil {
		_ = s.http.Close()
	}
	if s.grpc != nil {
		s.grpc.Stop()
	}
	s.Hub.Kick()
	s.wg.Wait()
}

// Addr returns the push channel address.
func (s *Server) Addr() string {
	if s.pushLn == nil {
		return ""
	}
	return s.pushLn.Addr().String()
}

// URL returns the push channel URL.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + "/ws"
}

// RPCAddr returns the RPC service address.
func (s *Server) RPCAddr() string {
	if s.rpcLn == nil {
		return ""
	}
	return s.rpcLn.Addr().String()
}

// identify checks the Authorization header and returns the username it
// names, if any.
func (s *Server) identify(header string) (string, bool) {
	switch {
	case s.secret != nil:
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", false
		}
		claims, err := auth.Verify(token, s.secret)
		if err != nil {
			log.Debug().Str("component", "chattest").Err(err).Msg("rejected token")
			return "", false
		}
		return claims.Username, true
	case s.token != "":
		return "", header == "Bearer "+s.token
	default:
		return "", true
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	username, ok := s.identify(r.Header.Get("Authorization"))
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Warn().Str("component", "chattest").Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(newServerConn(conn, rw.Reader))
	client.Username = username
	s.Hub.Register(client)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writeLoop(client)
	}()
	go func() {
		defer s.wg.Done()
		defer close(client.Outgoing)
		s.Hub.HandleClient(client)
	}()
}

func (s *Server) writeLoop(client *Client) {
	defer client.Conn.Close()
	for data := range client.Outgoing {
		if err := client.Conn.Write(context.Background(), data); err != nil {
			log.Debug().Str("component", "chattest").Err(err).Msg("failed to send frame to client")
			return
		}
	}
}
