package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/huddle/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyCaller     Key = "caller_id"

	HeaderRequestID = "X-Request-ID"
)

// Adapter turns a fasthttp request into a deadline-bound context carrying the
// request id and the verified caller.
type Adapter struct {
	timeout      time.Duration
	callerHeader string
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithCallerHeader names the header holding the authenticated user id.
func WithCallerHeader(header string) Option {
	return func(a *Adapter) { a.callerHeader = header }
}

func NewAdapter(timeout time.Duration, opts ...Option) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Adapter{timeout: timeout, callerHeader: "X-User-ID"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attach returns the request context and echoes the request id on the response.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := requestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set(HeaderRequestID, reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if caller := string(ctx.Request.Header.Peek(a.callerHeader)); caller != "" {
		stdCtx = context.WithValue(stdCtx, KeyCaller, caller)
	}

	return stdCtx, cancel
}

// Caller returns the authenticated user id attached by Attach.
func Caller(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	caller, _ := ctx.Value(KeyCaller).(string)
	return caller
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if header := strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderRequestID))); header != "" {
		return header
	}
	return uuid.NewString()
}
