package system

import (
	"context"
	"errors"
	"testing"
)

type tracedService struct {
	name     string
	startErr error
	order    *[]string
}

func (p *tracedService) Name() string { return p.name }

func (p *tracedService) Start(context.Context) error {
	if p.startErr != nil {
		return p.startErr
	}
	*p.order = append(*p.order, "start:"+p.name)
	return nil
}

func (p *tracedService) Stop(context.Context) error {
	*p.order = append(*p.order, "stop:"+p.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var order []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&tracedService{name: name, order: &order}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestManagerStartFailureUnwinds(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	m := NewManager()
	_ = m.Register(&tracedService{name: "a", order: &order})
	_ = m.Register(&tracedService{name: "b", startErr: boom, order: &order})

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
	if len(order) != 2 || order[1] != "stop:a" {
		t.Fatalf("expected a started then stopped, got %v", order)
	}
}

func TestManagerRejectsDuplicates(t *testing.T) {
	var order []string
	m := NewManager()
	if err := m.Register(&tracedService{name: "a", order: &order}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&tracedService{name: "a", order: &order}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
