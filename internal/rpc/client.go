package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-stub
// LineageServiceClient is the client side of lineage.v1.LineageService.
type LineageServiceClient interface {
	FindDetectionsByIDs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	FindDetectionsByStationsAndTime(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	FindHypothesesByIDs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	FindFilterRecords(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type serviceClient struct {
	cc grpc.ClientConnInterface
}

func NewLineageServiceClient(cc grpc.ClientConnInterface) LineageServiceClient {
	return &serviceClient{cc: cc}
}

func (c *serviceClient) call(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *serviceClient) FindDetectionsByIDs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, methodDetectionsByIDs, in, opts)
}

func (c *serviceClient) FindDetectionsByStationsAndTime(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, methodDetectionsByStation, in, opts)
}

func (c *serviceClient) FindHypothesesByIDs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, methodHypothesesByIDs, in, opts)
}

func (c *serviceClient) FindFilterRecords(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, methodFilterRecords, in, opts)
}

// #endregion client-stub

// #region client
// Client wraps a connection to a lineage service.
type Client struct {
	conn   *grpc.ClientConn
	client LineageServiceClient
}

// NewClient connects to the lineage service at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, client: NewLineageServiceClient(conn)}, nil
}

// NewClientWithService creates a Client over an injected service
// implementation, without a connection of its own.
func NewClientWithService(svc LineageServiceClient) *Client {
	return &Client{client: svc}
}

// Close shuts down the connection, if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) FindDetectionsByIDs(ctx context.Context, ids []uuid.UUID, stageName string) ([]Detection, error) {
	var out DetectionsResponse
	err := c.roundTrip(ctx, c.client.FindDetectionsByIDs, DetectionsByIDRequest{DetectionIDs: idStrings(ids), Stage: stageName}, &out)
	if err != nil {
		return nil, fmt.Errorf("find detections rpc: %w", err)
	}
	return out.Detections, nil
}

func (c *Client) FindDetectionsByStationsAndTime(ctx context.Context, stations []string, start, end time.Time, stageName string, excluded []uuid.UUID) ([]Detection, error) {
	var out DetectionsResponse
	req := DetectionsByStationRequest{Stations: stations, Start: start, End: end, Stage: stageName, Excluded: idStrings(excluded)}
	if err := c.roundTrip(ctx, c.client.FindDetectionsByStationsAndTime, req, &out); err != nil {
		return nil, fmt.Errorf("find detections by station rpc: %w", err)
	}
	return out.Detections, nil
}

func (c *Client) FindHypothesesByIDs(ctx context.Context, ids []uuid.UUID) ([]Hypothesis, error) {
	var out HypothesesResponse
	if err := c.roundTrip(ctx, c.client.FindHypothesesByIDs, HypothesisIDsRequest{HypothesisIDs: idStrings(ids)}, &out); err != nil {
		return nil, fmt.Errorf("find hypotheses rpc: %w", err)
	}
	return out.Hypotheses, nil
}

func (c *Client) FindFilterRecords(ctx context.Context, ids []uuid.UUID) ([]FilterRecord, bool, error) {
	var out FilterRecordsResponse
	if err := c.roundTrip(ctx, c.client.FindFilterRecords, HypothesisIDsRequest{HypothesisIDs: idStrings(ids)}, &out); err != nil {
		return nil, false, fmt.Errorf("find filter records rpc: %w", err)
	}
	return out.Records, out.Partial, nil
}

type method func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (c *Client) roundTrip(ctx context.Context, m method, req, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out, err := m(ctx, in)
	if err != nil {
		return err
	}
	return decode(out, resp)
}

// #endregion client
