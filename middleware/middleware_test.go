package middleware

import (
	"context"
	"testing"
	"time"

	"gtipc/message"
	"gtipc/wire"
)

func echoHandler(ctx context.Context, req *message.ComputeMessage) *message.ComputeMessage {
	return &message.ComputeMessage{Service: req.Service, Res: req.X + req.Y}
}

func TestChainOrdersOnionStyle(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.ComputeMessage) *message.ComputeMessage {
				order = append(order, name+":before")
				resp := next(ctx, req)
				order = append(order, name+":after")
				return resp
			}
		}
	}

	handler := Chain(mark("A"), mark("B"))(echoHandler)
	handler(context.Background(), &message.ComputeMessage{Service: wire.ServiceAdd, X: 1, Y: 2})

	want := []string{"A:before", "B:before", "B:after", "A:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	handler := RateLimitMiddleware(1, 1)(echoHandler)

	first := handler(context.Background(), &message.ComputeMessage{Service: wire.ServiceAdd, X: 1, Y: 1})
	if first.Err != "" {
		t.Fatalf("first request should pass, got error %q", first.Err)
	}

	second := handler(context.Background(), &message.ComputeMessage{Service: wire.ServiceAdd, X: 1, Y: 1})
	if second.Err == "" {
		t.Fatal("second request within the same burst should be rejected")
	}
}

func TestTimeoutMiddlewareSurfacesTimeout(t *testing.T) {
	slow := func(ctx context.Context, req *message.ComputeMessage) *message.ComputeMessage {
		time.Sleep(50 * time.Millisecond)
		return &message.ComputeMessage{Res: 1}
	}
	handler := TimeOutMiddleware(5 * time.Millisecond)(slow)

	resp := handler(context.Background(), &message.ComputeMessage{Service: wire.ServiceAdd})
	if resp.Err == "" {
		t.Fatal("expected a timeout error")
	}
}

func TestTimeoutMiddlewarePassesFastHandler(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), &message.ComputeMessage{Service: wire.ServiceAdd, X: 2, Y: 3})
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	if resp.Res != 5 {
		t.Errorf("Res = %d, want 5", resp.Res)
	}
}
