package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/onnwee/shooting-star/testutil"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	dbx, d := testutil.SetupTestDB(t)
	return New(dbx, d)
}

func TestBalanceUnknownUser(t *testing.T) {
	l := newLedger(t)
	got, err := l.Balance(context.Background(), 42)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if got != 0 {
		t.Fatalf("Balance = %d, want 0", got)
	}
}

func TestAddCoinsAccumulates(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	total, err := l.AddCoins(ctx, 7, "Alice", 130)
	if err != nil {
		t.Fatalf("first AddCoins: %v", err)
	}
	if total != 130 {
		t.Fatalf("first total = %d, want 130", total)
	}
	if got, _ := l.Balance(ctx, 7); got != 130 {
		t.Fatalf("Balance after first award = %d, want 130", got)
	}

	total, err = l.AddCoins(ctx, 7, "Alice", 130)
	if err != nil {
		t.Fatalf("second AddCoins: %v", err)
	}
	if total != 260 {
		t.Fatalf("second total = %d, want 260", total)
	}
	if got, _ := l.Balance(ctx, 7); got != 260 {
		t.Fatalf("Balance after second award = %d, want 260", got)
	}
}

func TestAddCoinsUpdatesDisplayName(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	if _, err := l.AddCoins(ctx, 7, "Alice", 130); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AddCoins(ctx, 7, "Alice the Great", 10); err != nil {
		t.Fatal(err)
	}
	top, err := l.Top(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].DisplayName != "Alice the Great" || top[0].Coins != 140 {
		t.Fatalf("Top = %+v, want single renamed entry with 140 coins", top)
	}
}

func TestAddCoinsRejectsNegative(t *testing.T) {
	l := newLedger(t)
	if _, err := l.AddCoins(context.Background(), 1, "x", -5); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("err = %v, want ErrNegativeAmount", err)
	}
}

func TestTopTen(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	for i := 1; i <= 15; i++ {
		if _, err := l.AddCoins(ctx, int64(i), fmt.Sprintf("user%d", i), int64(i*10)); err != nil {
			t.Fatalf("seed user %d: %v", i, err)
		}
	}
	top, err := l.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 10 {
		t.Fatalf("len(Top) = %d, want 10", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i-1].Coins < top[i].Coins {
			t.Fatalf("not descending at %d: %+v", i, top)
		}
	}
	if top[0].UserID != 15 || top[0].Coins != 150 {
		t.Fatalf("leader = %+v, want user 15 with 150", top[0])
	}
}

func TestTopTiesKeepInsertionOrder(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	for _, id := range []int64{30, 10, 20} {
		if _, err := l.AddCoins(ctx, id, fmt.Sprintf("u%d", id), 130); err != nil {
			t.Fatal(err)
		}
	}
	top, err := l.Top(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{30, 10, 20}
	for i, e := range top {
		if e.UserID != want[i] {
			t.Fatalf("tie order = %+v, want ids %v", top, want)
		}
	}
}

func TestAddCoinsConcurrent(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AddCoins(ctx, 5, "Bob", 130); err != nil {
				t.Errorf("AddCoins: %v", err)
			}
		}()
	}
	wg.Wait()
	if got, _ := l.Balance(ctx, 5); got != 20*130 {
		t.Fatalf("Balance = %d, want %d", got, 20*130)
	}
}
