package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
)

// Client is a Connect client for the RunService.
type Client struct {
	createSession  *connect.Client[CreateSessionRequest, CreateSessionResponse]
	step           *connect.Client[StepRequest, StepResponse]
	run            *connect.Client[RunRequest, RunResponse]
	readMemory     *connect.Client[ReadMemoryRequest, ReadMemoryResponse]
	status         *connect.Client[StatusRequest, StatusResponse]
	addSignature   *connect.Client[AddSignatureRequest, AddSignatureResponse]
	destroySession *connect.Client[DestroySessionRequest, DestroySessionResponse]
}

// NewClient creates a client for the RunService at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		createSession:  connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		step:           connect.NewClient[StepRequest, StepResponse](httpClient, baseURL+StepProcedure, opts...),
		run:            connect.NewClient[RunRequest, RunResponse](httpClient, baseURL+RunProcedure, opts...),
		readMemory:     connect.NewClient[ReadMemoryRequest, ReadMemoryResponse](httpClient, baseURL+ReadMemoryProcedure, opts...),
		status:         connect.NewClient[StatusRequest, StatusResponse](httpClient, baseURL+StatusProcedure, opts...),
		addSignature:   connect.NewClient[AddSignatureRequest, AddSignatureResponse](httpClient, baseURL+AddSignatureProcedure, opts...),
		destroySession: connect.NewClient[DestroySessionRequest, DestroySessionResponse](httpClient, baseURL+DestroySessionProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	return unary(ctx, c.createSession, req)
}

func (c *Client) Step(ctx context.Context, req *StepRequest) (*StepResponse, error) {
	return unary(ctx, c.step, req)
}

func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	return unary(ctx, c.run, req)
}

func (c *Client) ReadMemory(ctx context.Context, req *ReadMemoryRequest) (*ReadMemoryResponse, error) {
	return unary(ctx, c.readMemory, req)
}

func (c *Client) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	return unary(ctx, c.status, req)
}

func (c *Client) AddSignature(ctx context.Context, req *AddSignatureRequest) (*AddSignatureResponse, error) {
	return unary(ctx, c.addSignature, req)
}

func (c *Client) DestroySession(ctx context.Context, req *DestroySessionRequest) (*DestroySessionResponse, error) {
	return unary(ctx, c.destroySession, req)
}

// GRPCClient calls the RunService over a gRPC connection.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

// NewGRPCClient wraps conn.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func invoke[Res any](ctx context.Context, conn grpc.ClientConnInterface, method string, req any) (*Res, error) {
	out := new(Res)
	if err := conn.Invoke(ctx, method, req, out, grpc.ForceCodec(Codec{})); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	return invoke[CreateSessionResponse](ctx, c.conn, CreateSessionProcedure, req)
}

func (c *GRPCClient) Step(ctx context.Context, req *StepRequest) (*StepResponse, error) {
	return invoke[StepResponse](ctx, c.conn, StepProcedure, req)
}

func (c *GRPCClient) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	return invoke[RunResponse](ctx, c.conn, RunProcedure, req)
}

func (c *GRPCClient) ReadMemory(ctx context.Context, req *ReadMemoryRequest) (*ReadMemoryResponse, error) {
	return invoke[ReadMemoryResponse](ctx, c.conn, ReadMemoryProcedure, req)
}

func (c *GRPCClient) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.conn, StatusProcedure, req)
}

func (c *GRPCClient) AddSignature(ctx context.Context, req *AddSignatureRequest) (*AddSignatureResponse, error) {
	return invoke[AddSignatureResponse](ctx, c.conn, AddSignatureProcedure, req)
}

func (c *GRPCClient) DestroySession(ctx context.Context, req *DestroySessionRequest) (*DestroySessionResponse, error) {
	return invoke[DestroySessionResponse](ctx, c.conn, DestroySessionProcedure, req)
}
