package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"moff.io/moff-wallet/pkg/common"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/log/meta"
)

const (
	defaultXRequestIDHeader      = "x-request-id"
	defaultXB3TraceIDHeader      = "x-b3-traceid"
	defaultXB3SpanIDHeader       = "x-b3-spanid"
	defaultXB3ParentSpanIDHeader = "x-b3-parentspanid"
	defaultXB3SampledHeader      = "x-b3-sampled"
	defaultXB3FlagsHeader        = "x-b3-flags"
	defaultXOTSpanContextHeader  = "x-ot-span-context"

	walletAccountHeader = "x-wallet-account"
	walletSessionHeader = "x-wallet-session"
)

var traceHeaders = []string{
	defaultXRequestIDHeader,
	defaultXB3TraceIDHeader, defaultXB3SpanIDHeader, defaultXB3ParentSpanIDHeader,
	defaultXB3SampledHeader, defaultXB3FlagsHeader,
	defaultXOTSpanContextHeader,
	walletAccountHeader, walletSessionHeader,
}

// UnaryClientTraceInterceptor forwards trace headers found in the request
// metadata to outgoing calls.
func UnaryClientTraceInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(newOutgoingTraceContext(ctx), method, req, reply, cc, opts...)
	}
}

func newOutgoingTraceContext(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	for _, key := range traceHeaders {
		if val, _ := meta.Value(ctx, key).(string); val != "" {
			md.Set(key, val)
		}
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// captureTraceHeaders copies incoming trace headers into the request metadata.
func captureTraceHeaders(ctx context.Context, headers metadata.MD) {
	for _, key := range traceHeaders {
		if vals := headers.Get(key); len(vals) > 0 {
			meta.WithValue(ctx, key, vals[0])
		}
	}
}

type gRPCInfo struct {
	Headers       map[string]string `json:"headers"`
	RequestAPI    string            `json:"request_api,omitempty"`
	RemoteAddr    string            `json:"remote_addr,omitempty"`
	Parameter     interface{}       `json:"parameter,omitempty"`
	Response      *response         `json:"response,omitempty"`
	ExecutionTime string            `json:"execution_time,omitempty"`
}

func (in gRPCInfo) String() string {
	b, _ := json.Marshal(in)
	return string(b)
}

// RecoveredUnaryGRPCServerLog logs unary calls and converts handler panics
// into codes.Internal.
func RecoveredUnaryGRPCServerLog(options ...InterceptorOption) grpc.UnaryServerInterceptor {
	config := defaultGRPCConfig()
	for _, optFunc := range options {
		optFunc(config)
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		ctx = meta.Begin(ctx)
		headers, _ := metadata.FromIncomingContext(ctx)
		captureTraceHeaders(ctx, headers)
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = errors.ErrorfAndReport("%v", r)
			}
			params := req
			if config.noLogUnaryRequestParamMethods[info.FullMethod] {
				params = nil
			}
			if e := logGRPC(ctx, params, headers, info.FullMethod, start, err); e != nil {
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		resp, err = handler(ctx, req)
		return resp, err
	}
}

// RecoveredStreamServerLog is the streaming counterpart of
// RecoveredUnaryGRPCServerLog.
func RecoveredStreamServerLog() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		ctx := meta.Begin(ss.Context())
		headers, _ := metadata.FromIncomingContext(ctx)
		captureTraceHeaders(ctx, headers)
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = errors.ErrorfAndReport("%v", r)
			}
			if e := logGRPC(ctx, nil, headers, info.FullMethod, start, err); e != nil {
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}

// logGRPC returns the handler error back when it is not a gRPC status error,
// meaning the caller must answer with codes.Internal.
func logGRPC(ctx context.Context, req interface{}, headers map[string][]string, method string, start time.Time, handlerError error) error {
	rpcInfo := gRPCInfo{
		Headers:       requestHeaderFilter(headers),
		RequestAPI:    method,
		RemoteAddr:    IPFromGRPCContext(ctx),
		ExecutionTime: fmt.Sprintf("%vms", time.Since(start).Milliseconds()),
		Parameter:     req,
		Response: &response{
			ProtocolCode: int(codes.OK),
			Code:         codes.OK.String(),
		},
	}
	if handlerError == nil {
		log.Info(rpcInfo)
		return nil
	}
	if s, ok := status.FromError(handlerError); ok {
		rpcInfo.Response = &response{
			ProtocolCode: int(s.Code()),
			Code:         s.Code().String(),
			Message:      s.Message(),
		}
		if s.Code() == codes.Internal {
			log.Error(rpcInfo)
		} else {
			log.Warn(rpcInfo)
		}
		return nil
	}
	rpcInfo.Response = &response{
		ProtocolCode: int(codes.Internal),
		Code:         codes.Internal.String(),
		Message:      handlerError.Error(),
	}
	log.Error(rpcInfo)
	return handlerError
}

// IPFromGRPCContext prefers x-forwarded-for over the transport peer address.
func IPFromGRPCContext(ctx context.Context) string {
	if headers, ok := metadata.FromIncomingContext(ctx); ok {
		if forwards := headers.Get("x-forwarded-for"); len(forwards) != 0 {
			if ip := net.ParseIP(forwards[0]); ip != nil {
				return ip.String()
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return common.TrimIP(p.Addr.String())
	}
	return ""
}
