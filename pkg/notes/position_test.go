package notes_test

import (
	"math/big"
	"testing"

	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
)

func testAddress(n int64) curve.EcPoint {
	return curve.EcPoint{X: big.NewInt(n), Y: big.NewInt(n + 1)}
}

func TestIsLiquidatableCrossesInTheRightDirectionPerSide(t *testing.T) {
	header := notes.NewPositionHeader(tokens.BTC, false, testAddress(1), 0, 0, false)
	long := notes.NewPosition(1, header, notes.Long, 100, 1000, 50000, 0)
	short := notes.NewPosition(2, header, notes.Short, 100, 1000, 50000, 0)

	if !long.IsLiquidatable(long.LiquidationPrice) {
		t.Error("expected a long to be liquidatable exactly at its liquidation price")
	}
	if long.IsLiquidatable(long.LiquidationPrice + 1) {
		t.Error("expected a long above its liquidation price to be healthy")
	}
	if !short.IsLiquidatable(short.LiquidationPrice) {
		t.Error("expected a short to be liquidatable exactly at its liquidation price")
	}
	if short.IsLiquidatable(short.LiquidationPrice - 1) {
		t.Error("expected a short below its liquidation price to be healthy")
	}
}

func TestIsLiquidatableIsAlwaysFalseForAnEmptyPosition(t *testing.T) {
	header := notes.NewPositionHeader(tokens.BTC, false, testAddress(1), 0, 0, false)
	pos := notes.NewPosition(1, header, notes.Long, 0, 0, 50000, 0)
	if pos.IsLiquidatable(0) {
		t.Error("expected a zero-size position to never be liquidatable")
	}
}

func TestLeverageIsNotionalOverMargin(t *testing.T) {
	header := notes.NewPositionHeader(tokens.BTC, false, testAddress(1), 0, 0, false)
	pos := notes.NewPosition(1, header, notes.Long, 100, 1000, 50000, 0)

	const leverageDecimals = 10000
	// notional = 100*50000 = 5,000,000; margin = 1000 -> leverage = 5000x in
	// LEVERAGE_DECIMALS-fixed-point units.
	want := pos.Notional() * leverageDecimals / pos.Margin
	if got := pos.Leverage(leverageDecimals); got != want {
		t.Errorf("leverage = %d, want %d", got, want)
	}
	if got := (notes.PerpPosition{}).Leverage(leverageDecimals); got != 0 {
		t.Errorf("leverage with zero margin = %d, want 0", got)
	}
}

func TestLiquidatePositionFullyClosesWhenPartialDisallowed(t *testing.T) {
	header := notes.NewPositionHeader(tokens.BTC, false, testAddress(1), 0, 0, false)
	pos := notes.NewPosition(1, header, notes.Long, 100, 1000, 50000, 0)

	result := pos.LiquidatePosition(49990)
	if result.IsPartialLiquidation {
		t.Error("expected a full liquidation when allow_partial_liquidations is false")
	}
	if result.LiquidatedSize != pos.PositionSize {
		t.Errorf("liquidated size = %d, want %d", result.LiquidatedSize, pos.PositionSize)
	}
}

func TestLiquidatePositionGoesFullEvenWithPartialAllowedWhenDeeplyUnderwater(t *testing.T) {
	header := notes.NewPositionHeader(tokens.BTC, true, testAddress(1), 0, 0, false)
	pos := notes.NewPosition(1, header, notes.Long, 100, 1000, 50000, 0)

	// a crash far below the liquidation price drives equity negative even
	// after subtracting the liquidator fee, so leftover <= 0 and the
	// partial branch (which additionally requires leftover > 0) never
	// triggers regardless of allow_partial_liquidations.
	result := pos.LiquidatePosition(10000)
	if result.IsPartialLiquidation {
		t.Error("expected a full liquidation when leftover collateral is non-positive")
	}
	if result.LeftoverCollateral >= 0 {
		t.Error("expected a negative leftover from a deeply underwater long")
	}
}

func TestLiquidatePositionOnEmptyPositionIsANoOp(t *testing.T) {
	var pos notes.PerpPosition
	result := pos.LiquidatePosition(50000)
	if result.LiquidatedSize != 0 || result.IsPartialLiquidation {
		t.Errorf("expected a zero-value result for an empty position, got %+v", result)
	}
}

func TestRederivePricesClearsBothPricesWhenSizeIsZero(t *testing.T) {
	header := notes.NewPositionHeader(tokens.BTC, false, testAddress(1), 0, 0, false)
	pos := notes.NewPosition(1, header, notes.Long, 0, 0, 50000, 0)
	if pos.LiquidationPrice != 0 || pos.BankruptcyPrice != 0 {
		t.Errorf("expected both prices to be zero for a zero-size position, got liq=%d bankruptcy=%d", pos.LiquidationPrice, pos.BankruptcyPrice)
	}
}
