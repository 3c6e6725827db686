package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote passage service over gRPC.
type Client struct {
	conn   *grpc.ClientConn
	apiKey string
	token  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sends key in the x-api-key metadata of every call.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBearerToken sends token as an authorization bearer on every call.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a client for the passage service at addr.
func NewClient(addr string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to passage service at %s: %w", addr, err)
	}

	c := &Client{conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Filter runs relevance segment extraction remotely.
func (c *Client) Filter(ctx context.Context, req *FilterRequest) (*FilterResponse, error) {
	resp := &FilterResponse{}
	if err := c.invoke(ctx, MethodFilter, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Rerank reranks a batch remotely.
func (c *Client) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	resp := &RerankResponse{}
	if err := c.invoke(ctx, MethodRerank, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// EvaluatePrecision scores retrieval precision remotely.
func (c *Client) EvaluatePrecision(ctx context.Context, req *PrecisionRequest) (*PrecisionResponse, error) {
	resp := &PrecisionResponse{}
	if err := c.invoke(ctx, MethodEvaluatePrecision, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RetrieveAndFilter retrieves and filters remotely.
func (c *Client) RetrieveAndFilter(ctx context.Context, req *RetrieveRequest) (*RetrieveResponse, error) {
	resp := &RetrieveResponse{}
	if err := c.invoke(ctx, MethodRetrieveAndFilter, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}

	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", c.apiKey)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return FromStruct(out, resp)
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
