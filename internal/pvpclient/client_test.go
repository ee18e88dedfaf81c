package pvpclient

import "testing"

func TestGuardNotWorkerAllowsDispatcherCalls(t *testing.T) {
	c := &Client{}
	if err := c.guardNotWorker(); err != nil {
		t.Errorf("unexpected error off the worker goroutine: %v", err)
	}
}

func TestGuardNotWorkerRefusesWorkerCalls(t *testing.T) {
	c := &Client{}
	c.inWorker.Store(true)
	if err := c.guardNotWorker(); err == nil {
		t.Error("expected an error when called from the worker goroutine")
	}
}
