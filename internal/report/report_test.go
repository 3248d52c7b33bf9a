package report

import (
	"errors"
	"testing"
)

func TestInit_EmptyDSNDisables(t *testing.T) {
	if err := Init("", "test", "dev"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Enabled() {
		t.Error("expected reporting disabled without DSN")
	}
}

func TestInit_InvalidDSN(t *testing.T) {
	if err := Init("not a dsn", "test", "dev"); err == nil {
		t.Error("expected error for malformed DSN")
	}
	if Enabled() {
		t.Error("reporting must stay disabled after a failed Init")
	}
}

func TestRecover_SwallowsPanic(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover(map[string]string{"stream": "test"})
		panic("boom")
	}()
	<-done
}

func TestCaptureError_DisabledIsNoop(t *testing.T) {
	Init("", "", "")
	CaptureError(errors.New("ignored"), nil)
	CaptureError(nil, nil)
	Flush(0)
}
