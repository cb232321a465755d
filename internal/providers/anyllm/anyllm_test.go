package anyllm

import "testing"

func TestNew_RejectsEmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Error("expected an error for an empty model")
	}
}

func TestNew_RejectsUnsupportedProvider(t *testing.T) {
	if _, err := New("does-not-exist", "some-model"); err == nil {
		t.Error("expected an error for an unsupported provider name")
	}
}

func TestClose_IsANoOp(t *testing.T) {
	p := &Provider{}
	if err := p.Close(); err != nil {
		t.Errorf("expected Close to succeed, got %v", err)
	}
}

func TestWithGPULayers_RoundTrips(t *testing.T) {
	p := &Provider{}
	if got := p.GPULayers(); got != 0 {
		t.Errorf("got %d, want 0 before WithGPULayers is called", got)
	}
	if ret := p.WithGPULayers(-1); ret != p {
		t.Error("expected WithGPULayers to return the same Provider for chaining")
	}
	if got := p.GPULayers(); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}
