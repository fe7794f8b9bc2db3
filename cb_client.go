package aio

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerClient stops dialing and sending once the wrapped client
// keeps failing, until the breaker lets a probe through again.
type CircuitBreakerClient struct {
	breaker *gobreaker.CircuitBreaker
	Client
}

func NewCircuitBreakerClient(client Client, breaker *gobreaker.CircuitBreaker) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		Client:  client,
		breaker: breaker,
	}
}

// NewDefaultCircuitBreaker opens after maxFailures consecutive failures and
// probes again after timeout.
func NewDefaultCircuitBreaker(name string, maxFailures uint32, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			defaultLogger.Warnf("circuit breaker %s: %v -> %v", name, from, to)
		},
	})
}

func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *CircuitBreakerClient) Dial(addr string) (err error) {
	_, err = c.breaker.Execute(func() (interface{}, error) { return nil, c.Client.Dial(addr) })
	return
}

func (c *CircuitBreakerClient) Write(msg Message) (err error) {
	_, err = c.breaker.Execute(func() (interface{}, error) { return nil, c.Client.Write(msg) })
	return
}

func (c *CircuitBreakerClient) Call(ctx context.Context, req Request) (resp Response, err error) {
	var reply interface{}

	reply, err = c.breaker.Execute(func() (interface{}, error) { return c.Client.Call(ctx, req) })
	if err == nil {
		resp = reply.(Response)
	}
	return
}

func (c *CircuitBreakerClient) CallWithTimeout(ctx context.Context, req Request, timeout time.Duration) (resp Response, err error) {
	var reply interface{}

	reply, err = c.breaker.Execute(func() (interface{}, error) { return c.Client.CallWithTimeout(ctx, req, timeout) })
	if err == nil {
		resp = reply.(Response)
	}
	return
}

func (c *CircuitBreakerClient) Send(ctx context.Context, msg Message) (err error) {
	_, err = c.breaker.Execute(func() (interface{}, error) { return nil, c.Client.Send(ctx, msg) })
	return
}

func (c *CircuitBreakerClient) SendWithTimeout(ctx context.Context, msg Message, timeout time.Duration) (err error) {
	_, err = c.breaker.Execute(func() (interface{}, error) { return nil, c.Client.SendWithTimeout(ctx, msg, timeout) })
	return
}
