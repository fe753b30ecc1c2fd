// Package dispatcher implements the single-threaded serial actor that owns
// the batch's two state trees, modeled on the teacher's consensus.Engine
// run-loop: a select over a done channel and one command channel, instead
// of a view/propose loop (spec.md §5, §9 "Dispatcher message-pump").
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/util"
)

// CommandKind tags the union of mutation requests the actor accepts
// (spec.md §9: "a tagged-union Command{Deposit, Swap, PerpSwap,
// Liquidation, Margin, Split, TabAction, Finalize, PriceUpdate}").
type CommandKind int

const (
	CmdDeposit CommandKind = iota
	CmdWithdrawal
	CmdSpotSwap
	CmdPerpSwap
	CmdLiquidation
	CmdMarginChange
	CmdNoteSplit
	CmdOpenOrderTab
	CmdCloseOrderTab
	CmdOnchainRegisterMM
	CmdAddLiquidity
	CmdRemoveLiquidity
	CmdRemoveLiquidityPosition
	CmdFinalize
)

// Command is one request on the actor's channel: a kind, the matching
// payload, and the reply channel the actor responds on (spec.md §5
// "replies on a per-command reply channel").
type Command struct {
	Kind    CommandKind
	Payload any
	Reply   chan Result
}

// Result is what every command replies with: a witness record (nil for
// Finalize) or a finalize result (nil otherwise), and an error.
type Result struct {
	Witness  any
	Finalize *batch.FinalizeResult
	Err      error
}

// Actor is the serial executor. No shared mutable state escapes it
// (spec.md §9): every field is private and touched only from Run's
// goroutine.
type Actor struct {
	batch *batch.Batch
	log   *zap.SugaredLogger

	commands chan Command

	// admission is the counting-semaphore permit RPC handlers acquire
	// before submitting a command (spec.md §5 "await points occur around
	// admission").
	admission *semaphore.Weighted

	// paused is held exclusively by FinalizeBatch to block new admissions
	// while it drains in-flight handlers (spec.md §5).
	paused *semaphore.Weighted

	// clock is the yield point Finalize uses to let in-flight handlers
	// drain before it acquires the paused gate (spec.md §5 "finalize_batch
	// yields once"). Defaults to util.RealClock; tests can substitute a
	// fake to make the yield deterministic.
	clock util.Clock
}

// New constructs an Actor wrapping b. queueDepth bounds the command
// channel; admissionLimit bounds concurrent in-flight admissions.
func New(b *batch.Batch, log *zap.SugaredLogger, queueDepth int, admissionLimit int64) *Actor {
	return &Actor{
		batch:     b,
		log:       log,
		commands:  make(chan Command, queueDepth),
		admission: semaphore.NewWeighted(admissionLimit),
		paused:    semaphore.NewWeighted(1),
		clock:     util.RealClock{},
	}
}

// WithClock overrides the actor's yield clock, used by tests that need a
// deterministic Finalize drain step.
func (a *Actor) WithClock(c util.Clock) *Actor {
	a.clock = c
	return a
}

// Run is the serial executor's main loop: it applies every command
// received on the channel, in arrival order, until ctx is canceled
// (spec.md §5 "operations received by the serial executor are applied in
// the order they arrive on its channel").
func (a *Actor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-a.commands:
			cmd.Reply <- a.apply(cmd)
		}
	}
}

func (a *Actor) apply(cmd Command) Result {
	var (
		rec any
		fin *batch.FinalizeResult
		err error
	)
	switch cmd.Kind {
	case CmdDeposit:
		rec, err = a.batch.Deposit(cmd.Payload.(batch.DepositMsg))
	case CmdWithdrawal:
		rec, err = a.batch.Withdrawal(cmd.Payload.(batch.WithdrawalMsg))
	case CmdSpotSwap:
		rec, err = a.batch.SpotSwap(cmd.Payload.(batch.SpotSwapMsg))
	case CmdPerpSwap:
		rec, err = a.batch.PerpSwap(cmd.Payload.(batch.PerpSwapMsg))
	case CmdLiquidation:
		rec, err = a.batch.Liquidation(cmd.Payload.(batch.LiquidationOrderMsg))
	case CmdMarginChange:
		rec, err = a.batch.MarginChange(cmd.Payload.(batch.MarginChangeMsg))
	case CmdNoteSplit:
		rec, err = a.batch.NoteSplit(cmd.Payload.(batch.NoteSplitMsg))
	case CmdOpenOrderTab:
		rec, err = a.batch.OpenOrderTab(cmd.Payload.(batch.OpenOrderTabMsg))
	case CmdCloseOrderTab:
		rec, err = a.batch.CloseOrderTab(cmd.Payload.(batch.CloseOrderTabMsg))
	case CmdOnchainRegisterMM:
		rec, err = a.batch.OnchainRegisterMM(cmd.Payload.(batch.OnchainRegisterMMMsg))
	case CmdAddLiquidity:
		rec, err = a.batch.AddLiquidity(cmd.Payload.(batch.AddLiquidityMsg))
	case CmdRemoveLiquidity:
		rec, err = a.batch.RemoveLiquidity(cmd.Payload.(batch.RemoveLiquidityMsg))
	case CmdRemoveLiquidityPosition:
		rec, err = a.batch.RemoveLiquidityPosition(cmd.Payload.(batch.PositionRemoveLiquidityMsg))
	case CmdFinalize:
		fin, err = a.batch.FinalizeBatch()
	default:
		err = fmt.Errorf("dispatcher: unknown command kind %d", cmd.Kind)
	}
	if err != nil && a.log != nil {
		a.log.Warnw("tx rejected", "kind", cmd.Kind, "err", err)
	}
	return Result{Witness: rec, Finalize: fin, Err: err}
}

// Submit acquires an admission permit, waits out any in-flight
// FinalizeBatch, enqueues cmd, and blocks for its reply. Executors
// themselves run to completion without yielding once dispatched; a caller
// context cancellation only discards the reply, it never cancels execution
// (spec.md §5 "Cancellation and timeouts").
func (a *Actor) Submit(ctx context.Context, kind CommandKind, payload any) Result {
	if err := a.admission.Acquire(ctx, 1); err != nil {
		return Result{Err: fmt.Errorf("dispatcher: admission: %w", err)}
	}
	defer a.admission.Release(1)

	if err := a.paused.Acquire(ctx, 1); err != nil {
		return Result{Err: fmt.Errorf("dispatcher: paused gate: %w", err)}
	}
	a.paused.Release(1)

	reply := make(chan Result, 1)
	cmd := Command{Kind: kind, Payload: payload, Reply: reply}
	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}

	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		// The executor still runs to completion and records its result;
		// this reply is simply discarded (spec.md §5).
		return Result{Err: ctx.Err()}
	}
}

// Finalize yields for any in-flight handlers to drain, acquires the paused
// gate exclusively, then submits a Finalize command (spec.md §5
// "finalize_batch yields once... then acquires the paused-mutex
// exclusively").
func (a *Actor) Finalize(ctx context.Context) (*batch.FinalizeResult, error) {
	select {
	case <-a.clock.After(time.Microsecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := a.paused.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("dispatcher: finalize: acquire paused gate: %w", err)
	}
	defer a.paused.Release(1)

	reply := make(chan Result, 1)
	cmd := Command{Kind: CmdFinalize, Reply: reply}
	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res := <-reply
	if res.Err != nil {
		return nil, fmt.Errorf("dispatcher: finalize: %w", res.Err)
	}
	return res.Finalize, nil
}
