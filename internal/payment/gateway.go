// Package payment defines the external payment collaborator consumed by
// the billing processor, plus the simulated gateway used outside
// production.
package payment

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Result is the gateway's verdict on a charge. A declined charge is a
// business outcome, not an error; transport problems are errors.
type Result struct {
	Success bool
	Message string
}

// Gateway charges a subscription's payment method. Implementations must
// honor ctx cancellation; the caller bounds every charge with a deadline
// and treats overruns as transient failures.
type Gateway interface {
	Charge(ctx context.Context, subscriptionID int64, amount decimal.Decimal) (Result, error)
}

// SimulatedGateway approves or declines charges at a configured rate.
// A zero seed gives nondeterministic behavior; tests pass a fixed seed.
type SimulatedGateway struct {
	failureRate float64
	mu          sync.Mutex
	rng         *rand.Rand
	logger      *slog.Logger
}

func NewSimulatedGateway(failureRate float64, seed int64, logger *slog.Logger) *SimulatedGateway {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedGateway{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(seed)),
		logger:      logger,
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, subscriptionID int64, amount decimal.Decimal) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	g.mu.Lock()
	declined := g.rng.Float64() < g.failureRate
	g.mu.Unlock()

	if declined {
		g.logger.Info("payment declined",
			"subscription_id", subscriptionID,
			"amount", amount.String(),
		)
		return Result{Success: false, Message: "insufficient funds"}, nil
	}

	g.logger.Info("payment processed",
		"subscription_id", subscriptionID,
		"amount", amount.String(),
	)
	return Result{Success: true, Message: "payment processed successfully"}, nil
}
