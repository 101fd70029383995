package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	backend := slog.NewBackend(io.Discard)
	log := backend.Logger("LEDGER")
	l, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), log)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestTransferToEscrowIdempotentReplay(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.upsertWalletDirect(ctx, "alice", 500))

	for i := 0; i < 3; i++ {
		err := l.TransferToEscrow(ctx, "buyin-1", "alice", "table-1", 200, EntryBuyIn, "test buy-in")
		require.NoError(t, err)
	}

	walletBal, err := l.Wallet(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(300), walletBal)

	escrowBal, err := l.Escrow(ctx, "table-1")
	require.NoError(t, err)
	require.Equal(t, int64(200), escrowBal)
}

func TestTransferToEscrowInsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.upsertWalletDirect(ctx, "bob", 50))

	err := l.TransferToEscrow(ctx, "buyin-2", "bob", "table-1", 200, EntryBuyIn, "test buy-in")
	require.Error(t, err)

	walletBal, err := l.Wallet(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(50), walletBal)
}

func TestLedgerBalanceEqualsSumOfEntries(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.ClaimFaucet(ctx, "seed-carol", "carol", 1000, time.Hour))
	require.NoError(t, l.TransferToEscrow(ctx, "op-1", "carol", "table-9", 300, EntryBuyIn, "test buy-in"))
	require.NoError(t, l.TransferFromEscrow(ctx, "op-2", "table-9", "carol", 100, EntryCashOut, "test cash-out"))

	report, err := l.Reconcile(ctx)
	require.NoError(t, err)
	require.True(t, report.Clean(), "mismatches: wallets=%v escrows=%v", report.WalletMismatches, report.EscrowMismatches)
}

func TestFaucetClaimRaceGrantsExactlyOnceWithinCooldown(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.ClaimFaucet(ctx, fmt.Sprintf("faucet-%d", i), "dave", 100, time.Hour)
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent faucet claim should succeed inside the cooldown window")

	bal, err := l.Wallet(ctx, "dave")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal)
}

func TestCreditEscrowServerFundedHasNoWalletLeg(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.CreditEscrowServerFunded(ctx, "bot-buyin-1", "table-5", 500, "bot seat fill"))

	escrowBal, err := l.Escrow(ctx, "table-5")
	require.NoError(t, err)
	require.Equal(t, int64(500), escrowBal)

	report, err := l.Reconcile(ctx)
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestHistoryRecordsEntryMetadata(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.upsertWalletDirect(ctx, "erin", 1000))
	require.NoError(t, l.TransferToEscrow(ctx, "op-3", "erin", "table-2", 400, EntryBuyIn, "buy-in at table-2"))

	entries, err := l.History(ctx, "erin", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, EntryBuyIn, entries[0].EntryType)
	require.Equal(t, "debit", entries[0].Direction)
	require.Equal(t, int64(600), entries[0].BalanceAfter)
}

// upsertWalletDirect seeds a wallet balance outside of the idempotent
// operation log, standing in for whatever external process funds a
// brand-new account (e.g. a purchase webhook) in production.
func (l *Ledger) upsertWalletDirect(ctx context.Context, userID string, amount int64) error {
	return l.withTx(ctx, func(tx *sql.Tx) error {
		return l.upsertWallet(ctx, tx, userID, amount)
	})
}
