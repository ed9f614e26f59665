package mock

import (
	"context"
	"math"
	"testing"
)

func TestDataProvider_GetQuote(t *testing.T) {
	provider := NewDataProvider()

	q, err := provider.GetQuote(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", q.Symbol)
	}
	if q.Last < 1 {
		t.Errorf("Last = %v, want >= 1", q.Last)
	}
	if q.Bid >= q.Last || q.Ask <= q.Last {
		t.Errorf("spread not around last: bid=%v last=%v ask=%v", q.Bid, q.Last, q.Ask)
	}
	if cents := q.Last * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
		t.Errorf("Last %v is not on a penny tick", q.Last)
	}
}

func TestStaticDataProvider_PinnedPrice(t *testing.T) {
	provider := NewStaticDataProvider()
	provider.SetPrice("msft", 401.1)

	for i := 0; i < 3; i++ {
		q, err := provider.GetQuote(context.Background(), "MSFT")
		if err != nil {
			t.Fatalf("GetQuote: %v", err)
		}
		if q.Last != 401.1 {
			t.Fatalf("Last = %v, want 401.1", q.Last)
		}
	}
}

func TestStaticDataProvider_SeedIsStable(t *testing.T) {
	a, _ := NewStaticDataProvider().GetQuote(context.Background(), "SPY")
	b, _ := NewStaticDataProvider().GetQuote(context.Background(), "SPY")
	if a.Last != b.Last {
		t.Fatalf("seed prices differ: %v vs %v", a.Last, b.Last)
	}
	if a.Last < 20 || a.Last >= 500 {
		t.Fatalf("seed price %v outside [20, 500)", a.Last)
	}
}

func TestDataProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDataProvider().GetQuote(ctx, "SPY"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
