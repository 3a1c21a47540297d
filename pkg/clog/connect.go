package clog

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
)

type connectConfig struct {
	Filter func(spec connect.Spec, err error) bool
}

type ConnectOption func(*connectConfig)

// WithConnectFilter suppresses the log line for calls where filter returns
// false.
func WithConnectFilter(filter func(spec connect.Spec, err error) bool) ConnectOption {
	return func(cfg *connectConfig) {
		cfg.Filter = filter
	}
}

// DefaultConnectHealthCheckUnaryFilter keeps successful health probes out of
// the log.
func DefaultConnectHealthCheckUnaryFilter(spec connect.Spec, err error) bool {
	return err != nil || spec.Procedure != "/grpc.health.v1.Health/Check"
}

// NewSlogConnectInterceptor logs one line per unary call.
func NewSlogConnectInterceptor(opts ...ConnectOption) connect.UnaryInterceptorFunc {
	cfg := connectConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			startTime := time.Now()
			newCtx := ContextWithSlog(ctx)
			AddAttributes(newCtx, map[string]any{
				"method":    req.HTTPMethod(),
				"procedure": req.Spec().Procedure,
			})
			resp, err := next(newCtx, req)
			if cfg.Filter != nil && !cfg.Filter(req.Spec(), err) {
				return resp, err
			}

			level := LevelInfo
			msg := "Finished"
			codeStr := "ok"
			if err != nil {
				var cerr *connect.Error
				if !errors.As(err, &cerr) {
					cerr = connect.NewError(connect.CodeUnknown, err)
				}
				codeStr = cerr.Code().String()
				level = ConnectCodeToLevel(cerr.Code())
				msg = cerr.Message()
			}
			AddAttributes(newCtx, map[string]any{
				"code":     codeStr,
				"duration": time.Since(startTime),
			})
			Log(newCtx, level, msg)
			return resp, err
		}
	}
}
