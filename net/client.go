package net

import (
	"context"
	"fmt"
	"sync"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/internal/router"
	"github.com/loragw/gateway-agent/key"
	"github.com/loragw/gateway-agent/proto"
)

const (
	routeMethod        = "/packetrouter.PacketRouter/Route"
	regionParamsMethod = "/config.Config/RegionParams"
	randomPeerMethod   = "/config.Config/RandomPeer"
)

var routeStreamDesc = grpc.StreamDesc{
	StreamName:    "Route",
	ServerStreams: true,
	ClientStreams: true,
}

// Client is a shared gRPC connection pool keyed by upstream URI, mirroring
// the teacher's grpcClient: one *grpc.ClientConn per address, reused across
// calls, opened with insecure transport credentials for the in-repo
// default (TLS material, like key storage, is provisioned externally).
type Client struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	opts  []grpc.DialOption
}

var _ router.Dialer = (*Client)(nil)
var _ region.ParamsClient = (*Client)(nil)
var _ region.PeerClient = (*Client)(nil)

// NewClient builds a Client with extra dial options appended after the
// package defaults: insecure transport credentials, plus the grpc_prometheus
// client interceptor chained through go-grpc-middleware's client chain
// builder so every RPC this agent makes (routing, region fetches, peer
// discovery) reports call counts and latencies the same way the teacher's
// internal/net/listener.go chains its server-side interceptors — here
// generalized to the client side, since this agent dials out rather than
// serving gRPC itself.
func NewClient(opts ...grpc.DialOption) *Client {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpcmiddleware.ChainUnaryClient(
			grpcprometheus.UnaryClientInterceptor,
		)),
		grpc.WithStreamInterceptor(grpcmiddleware.ChainStreamClient(
			grpcprometheus.StreamClientInterceptor,
		)),
	}
	return &Client{
		conns: make(map[string]*grpc.ClientConn),
		opts:  append(defaults, opts...),
	}
}

func (c *Client) conn(ctx context.Context, uri key.KeyedUri) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.conns[uri.URI]; ok {
		return cc, nil
	}
	cc, err := grpc.DialContext(ctx, uri.URI, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", uri.URI, err)
	}
	c.conns[uri.URI] = cc
	return cc, nil
}

// Dial opens the bidirectional Route stream the Router Conduit uses.
func (c *Client) Dial(ctx context.Context, uri key.KeyedUri) (router.Stream, error) {
	cc, err := c.conn(ctx, uri)
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	cs, err := cc.NewStream(streamCtx, &routeStreamDesc, routeMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open route stream: %w", err)
	}
	return &grpcStream{stream: cs, cancel: cancel}, nil
}

type grpcStream struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (s *grpcStream) Send(ctx context.Context, env *proto.EnvelopeUp) error {
	return s.stream.SendMsg(env)
}

func (s *grpcStream) Recv(ctx context.Context) (*proto.EnvelopeDown, error) {
	var out proto.EnvelopeDown
	if err := s.stream.RecvMsg(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *grpcStream) Close() error {
	s.cancel()
	return nil
}

// RegionParams calls the config-service (or validator peer) RegionParams
// RPC and converts the wire response into region.Params.
func (c *Client) RegionParams(ctx context.Context, uri key.KeyedUri, regionID string, kp *key.Keypair) (region.Params, error) {
	cc, err := c.conn(ctx, uri)
	if err != nil {
		return region.Params{}, err
	}
	req := &proto.GatewayRegionParamsReqV1{Region: regionID, Gateway: kp.Public}
	sig := kp.Sign(mustCanonical(req))
	req.Signature = sig

	callCtx, cancel := context.WithTimeout(ctx, router.RPCTimeout)
	defer cancel()
	var res proto.GatewayRegionParamsResV1
	if err := cc.Invoke(callCtx, regionParamsMethod, req, &res, grpc.CallContentSubtype(codecName)); err != nil {
		return region.Params{}, fmt.Errorf("region params rpc: %w", err)
	}
	return toParams(res), nil
}

// RandomPeer calls a seed gateway's RandomPeer RPC for validator-mode peer
// selection.
func (c *Client) RandomPeer(ctx context.Context, seed key.KeyedUri, kp *key.Keypair) (key.KeyedUri, error) {
	cc, err := c.conn(ctx, seed)
	if err != nil {
		return key.KeyedUri{}, err
	}
	req := &proto.RandomPeerReqV1{Gateway: kp.Public}
	req.Signature = kp.Sign(mustCanonical(req))

	callCtx, cancel := context.WithTimeout(ctx, router.RPCTimeout)
	defer cancel()
	var res proto.RandomPeerResV1
	if err := cc.Invoke(callCtx, randomPeerMethod, req, &res, grpc.CallContentSubtype(codecName)); err != nil {
		return key.KeyedUri{}, fmt.Errorf("random peer rpc: %w", err)
	}
	return key.ParseKeyedUri(res.URI, fmt.Sprintf("%x", res.PublicKey))
}

func mustCanonical(m interface{ CanonicalBytes() ([]byte, error) }) []byte {
	b, err := m.CanonicalBytes()
	if err != nil {
		return nil
	}
	return b
}

func toParams(res proto.GatewayRegionParamsResV1) region.Params {
	channels := make([]region.ChannelParam, len(res.Channels))
	for i, ch := range res.Channels {
		channels[i] = region.ChannelParam{
			ChannelFrequency: ch.ChannelFrequency,
			Bandwidth:        ch.Bandwidth,
			MaxEIRP:          ch.MaxEIRP,
		}
	}
	datarates := make([]region.Datarate, len(res.Datarates))
	for i, dr := range res.Datarates {
		datarates[i] = region.Datarate{
			SpreadingFactor: dr.SpreadingFactor,
			Bandwidth:       dr.Bandwidth,
			MaxPayloadSize:  dr.MaxPayloadSize,
		}
	}
	return region.NewDefault(res.Region, channels, datarates, res.ConductedW)
}

// Close tears down every pooled connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range c.conns {
		cc.Close()
	}
	c.conns = make(map[string]*grpc.ClientConn)
	return nil
}
