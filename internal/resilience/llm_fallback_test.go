package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

type stubChatLLM struct {
	response   string
	err        error
	calls      int
	closeCalls int
}

func (s *stubChatLLM) Complete(_ context.Context, _ []pipeline.ChatMessage, _ float64, _ int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubChatLLM) Close() error {
	s.closeCalls++
	return nil
}

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &stubChatLLM{response: "hello from primary"}
	secondary := &stubChatLLM{response: "hello from secondary"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), nil, 0.7, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello from primary" {
		t.Fatalf("resp = %q, want 'hello from primary'", resp)
	}
	if primary.calls != 1 {
		t.Fatalf("primary called %d times, want 1", primary.calls)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.calls)
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	primary := &stubChatLLM{err: errors.New("primary down")}
	secondary := &stubChatLLM{response: "hello from secondary"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), nil, 0.7, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello from secondary" {
		t.Fatalf("resp = %q, want 'hello from secondary'", resp)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	primary := &stubChatLLM{err: errors.New("primary down")}
	secondary := &stubChatLLM{err: errors.New("secondary down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), nil, 0.7, 512)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Close_ClosesAllBackends(t *testing.T) {
	primary := &stubChatLLM{}
	secondary := &stubChatLLM{}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if err := fb.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.closeCalls != 1 || secondary.closeCalls != 1 {
		t.Fatalf("expected both backends closed once, got primary=%d secondary=%d", primary.closeCalls, secondary.closeCalls)
	}
}
