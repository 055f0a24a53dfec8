// Package rpc exposes the lineage resolver as lineage.v1.LineageService.
// Messages are google.protobuf.Struct documents, so no generated code is
// needed on either side.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/lineage"
	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
)

// #region service
const ServiceName = "lineage.v1.LineageService"

const (
	methodDetectionsByIDs     = "/" + ServiceName + "/FindDetectionsByIDs"
	methodDetectionsByStation = "/" + ServiceName + "/FindDetectionsByStationsAndTime"
	methodHypothesesByIDs     = "/" + ServiceName + "/FindHypothesesByIDs"
	methodFilterRecords       = "/" + ServiceName + "/FindFilterRecords"
)

// Resolver is the part of lineage.Resolver the service calls.
type Resolver interface {
	FindDetectionsByIDs(ctx context.Context, detectionIDs []uuid.UUID, stageName string) ([]detection.Detection, error)
	FindDetectionsByStationsAndTime(ctx context.Context, stations []string, start, end time.Time, stageName string, excluded []uuid.UUID) ([]detection.Detection, error)
	FindHypothesesByIDs(ctx context.Context, hypothesisIDs []uuid.UUID) ([]detection.Hypothesis, error)
	FindFilterRecords(ctx context.Context, hypothesisIDs []uuid.UUID) ([]lineage.FilterRecordIDsByUsage, bool, error)
}

// LineageServiceServer is the server side of lineage.v1.LineageService.
type LineageServiceServer interface {
	FindDetectionsByIDs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindDetectionsByStationsAndTime(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindHypothesesByIDs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindFilterRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unary(method string, call func(LineageServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LineageServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LineageServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LineageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindDetectionsByIDs", Handler: unary(methodDetectionsByIDs, LineageServiceServer.FindDetectionsByIDs)},
		{MethodName: "FindDetectionsByStationsAndTime", Handler: unary(methodDetectionsByStation, LineageServiceServer.FindDetectionsByStationsAndTime)},
		{MethodName: "FindHypothesesByIDs", Handler: unary(methodHypothesesByIDs, LineageServiceServer.FindHypothesesByIDs)},
		{MethodName: "FindFilterRecords", Handler: unary(methodFilterRecords, LineageServiceServer.FindFilterRecords)},
	},
	Metadata: "lineage/v1/lineage.proto",
}

// RegisterLineageService installs srv on s.
func RegisterLineageService(s grpc.ServiceRegistrar, srv LineageServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// #endregion service

// #region server
// Server adapts a Resolver to LineageServiceServer.
type Server struct {
	resolver Resolver
	log      *slog.Logger
}

func NewServer(resolver Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{resolver: resolver, log: logger}
}

func (s *Server) FindDetectionsByIDs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DetectionsByIDRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ids, err := parseIDs(req.DetectionIDs)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	dets, err := s.resolver.FindDetectionsByIDs(ctx, ids, req.Stage)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(toDetections(dets))
}

func (s *Server) FindDetectionsByStationsAndTime(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DetectionsByStationRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.End.Before(req.Start) {
		return nil, status.Error(codes.InvalidArgument, "end is before start")
	}
	excluded, err := parseIDs(req.Excluded)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	dets, err := s.resolver.FindDetectionsByStationsAndTime(ctx, req.Stations, req.Start, req.End, req.Stage, excluded)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(toDetections(dets))
}

func (s *Server) FindHypothesesByIDs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req HypothesisIDsRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ids, err := parseIDs(req.HypothesisIDs)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	hyps, err := s.resolver.FindHypothesesByIDs(ctx, ids)
	if err != nil {
		return nil, toStatus(err)
	}
	out := HypothesesResponse{Hypotheses: make([]Hypothesis, 0, len(hyps))}
	for _, h := range hyps {
		out.Hypotheses = append(out.Hypotheses, toHypothesis(h))
	}
	return reply(out)
}

func (s *Server) FindFilterRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req HypothesisIDsRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ids, err := parseIDs(req.HypothesisIDs)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	recs, partial, err := s.resolver.FindFilterRecords(ctx, ids)
	if err != nil {
		return nil, toStatus(err)
	}
	if partial {
		s.log.Warn("filter records incomplete", "requested", len(ids), "returned", len(recs))
	}
	return reply(toFilterRecords(recs, partial))
}

func reply(v any) (*structpb.Struct, error) {
	out, err := encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	var cfg *stage.ConfigurationError
	switch {
	case errors.As(err, &cfg):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// LoggingInterceptor logs every call with its duration and status code.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		return resp, err
	}
}

// #endregion server
