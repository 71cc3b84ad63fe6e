package payment

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimulatedGatewayAlwaysApproves(t *testing.T) {
	g := NewSimulatedGateway(0, 1, testLogger())

	for i := 0; i < 50; i++ {
		result, err := g.Charge(context.Background(), 1, decimal.NewFromInt(10))
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if !result.Success {
			t.Fatal("failure rate 0 must always approve")
		}
	}
}

func TestSimulatedGatewayAlwaysDeclines(t *testing.T) {
	g := NewSimulatedGateway(1, 1, testLogger())

	result, err := g.Charge(context.Background(), 1, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if result.Success {
		t.Fatal("failure rate 1 must always decline")
	}
	if result.Message == "" {
		t.Error("a decline carries a gateway message")
	}
}

func TestSimulatedGatewayHonorsContext(t *testing.T) {
	g := NewSimulatedGateway(0, 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Charge(ctx, 1, decimal.NewFromInt(10))
	if err == nil {
		t.Fatal("cancelled context must fail the charge")
	}
}
