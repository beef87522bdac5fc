package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const deliverMethod = "/torusgol.Halo/Deliver"

// DefaultPeerTimeout bounds how long a single delivery may wait for its
// peer to become reachable.
const DefaultPeerTimeout = 30 * time.Second

type haloServer interface {
	Deliver(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

var haloServiceDesc = grpc.ServiceDesc{
	ServiceName: "torusgol.Halo",
	HandlerType: (*haloServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "halo.proto",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(haloServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(haloServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCTransport connects ranks running as separate processes. Each rank
// serves the Deliver method on its own peer address and holds one client
// connection per other rank.
type GRPCTransport struct {
	rank    int
	peers   []string
	inbox   *Mailbox
	server  *grpc.Server
	conns   []*grpc.ClientConn
	addr    net.Addr
	timeout time.Duration
}

type GRPCOption func(*GRPCTransport)

// WithPeerTimeout overrides DefaultPeerTimeout.
func WithPeerTimeout(d time.Duration) GRPCOption {
	return func(t *GRPCTransport) { t.timeout = d }
}

// ListenGRPC listens on peers[rank] and connects to every other peer.
func ListenGRPC(rank int, peers []string, opts ...GRPCOption) (*GRPCTransport, error) {
	if rank < 0 || rank >= len(peers) {
		return nil, fmt.Errorf("rank %d outside of %d peers", rank, len(peers))
	}
	lis, err := net.Listen("tcp", peers[rank])
	if err != nil {
		return nil, fmt.Errorf("rank %d: listen on %s: %w", rank, peers[rank], err)
	}
	return ServeGRPC(rank, lis, peers, opts...)
}

// ServeGRPC is ListenGRPC on an existing listener. peers[rank] is ignored.
func ServeGRPC(rank int, lis net.Listener, peers []string, opts ...GRPCOption) (*GRPCTransport, error) {
	if rank < 0 || rank >= len(peers) {
		lis.Close()
		return nil, fmt.Errorf("rank %d outside of %d peers", rank, len(peers))
	}

	t := &GRPCTransport{
		rank:    rank,
		peers:   peers,
		inbox:   NewMailbox(),
		server:  grpc.NewServer(),
		conns:   make([]*grpc.ClientConn, len(peers)),
		addr:    lis.Addr(),
		timeout: DefaultPeerTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}

	for peer, addr := range peers {
		if peer == rank {
			continue
		}
		conn, err := grpc.NewClient("passthrough:///"+addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			t.closeConns()
			lis.Close()
			return nil, fmt.Errorf("rank %d: client for rank %d at %s: %w", rank, peer, addr, err)
		}
		t.conns[peer] = conn
	}

	t.server.RegisterService(&haloServiceDesc, haloHandler{t})
	go t.server.Serve(lis)
	return t, nil
}

func (t *GRPCTransport) Rank() int       { return t.rank }
func (t *GRPCTransport) Size() int       { return len(t.peers) }
func (t *GRPCTransport) Inbox() *Mailbox { return t.inbox }

// Addr is the address the rank is actually serving on.
func (t *GRPCTransport) Addr() net.Addr { return t.addr }

func (t *GRPCTransport) Deliver(ctx context.Context, msg Message) error {
	if msg.To < 0 || msg.To >= len(t.peers) {
		return fmt.Errorf("%w: no rank %d", ErrPeerUnreachable, msg.To)
	}

	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	if msg.To == t.rank {
		var delivered Message
		if err := delivered.UnmarshalBinary(data); err != nil {
			return err
		}
		return t.inbox.Put(delivered)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	err = t.conns[msg.To].Invoke(ctx, deliverMethod, wrapperspb.Bytes(data), new(emptypb.Empty),
		grpc.WaitForReady(true))
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: rank %d at %s: %v", ErrPeerUnreachable, msg.To, t.peers[msg.To], err)
	case codes.AlreadyExists:
		return fmt.Errorf("rank %d: %w: %v", msg.To, ErrDuplicate, err)
	default:
		return fmt.Errorf("rank %d: %w", msg.To, err)
	}
}

// Close stops serving once in-flight deliveries finish, then drops the
// client connections.
func (t *GRPCTransport) Close() error {
	t.server.GracefulStop()
	t.inbox.Close()
	return t.closeConns()
}

func (t *GRPCTransport) closeConns() error {
	var errs []error
	for _, conn := range t.conns {
		if conn != nil {
			errs = append(errs, conn.Close())
		}
	}
	return errors.Join(errs...)
}

type haloHandler struct {
	t *GRPCTransport
}

func (h haloHandler) Deliver(_ context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var msg Message
	if err := msg.UnmarshalBinary(in.GetValue()); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if msg.To != h.t.rank {
		return nil, status.Errorf(codes.InvalidArgument, "message for rank %d delivered to rank %d", msg.To, h.t.rank)
	}
	if err := h.t.inbox.Put(msg); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, status.Error(codes.AlreadyExists, err.Error())
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &emptypb.Empty{}, nil
}
