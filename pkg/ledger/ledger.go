// Package ledger is the double-entry chip ledger: a wallet per user_id,
// an escrow per table_id, and an append-only entry log that the two
// balances must always sum to. Every mutating operation is keyed by a
// caller-supplied idempotency key so a retried call after a dropped
// connection applies exactly once instead of double-spending or
// double-crediting chips.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/mattn/go-sqlite3"

	"github.com/holdencore/pokercore/pkg/pokererr"
)

// Entry is one leg of a ledger operation, as recorded in ledger_entries.
type Entry struct {
	IdempotencyKey string
	AccountType    string // "wallet" or "escrow"
	AccountID      string
	Delta          int64
	Direction      string // "credit" or "debit", derived from Delta's sign
	EntryType      string
	BalanceAfter   int64
	Description    string
	CreatedAt      time.Time
}

// EntryType classifies why a ledger leg was recorded, for audit and
// statement purposes.
const (
	EntryBuyIn      = "buy_in"
	EntryCashOut    = "cash_out"
	EntryRake       = "rake"
	EntryBonus      = "bonus"
	EntryAdminAdjust = "admin_adjust"
	EntryTransfer   = "transfer"
	EntryFaucet     = "faucet"
)

// Ledger wraps a *sql.DB holding the wallet/escrow schema. A Ledger is
// safe for concurrent use; sqlite serializes writers internally and
// BEGIN IMMEDIATE is used for any transaction that needs to observe a
// consistent snapshot before deciding whether to write.
type Ledger struct {
	db  *sql.DB
	log slog.Logger
	now func() time.Time
}

// Open opens (creating if absent) a sqlite-backed ledger at path. Pass a
// DSN with its own query string (e.g. "file:foo?mode=memory&cache=shared")
// for an ephemeral ledger in tests; a bare file path gets sane defaults.
func Open(path string, log slog.Logger) (*Ledger, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&_foreign_keys=on", path)
	} else {
		dsn = dsn + "&_txlock=immediate&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer, and in-memory DBs are per-connection
	l := &Ledger{db: db, log: log, now: time.Now}
	if err := l.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	user_id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS table_escrows (
	table_id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS operations (
	idempotency_key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	idempotency_key TEXT NOT NULL REFERENCES operations(idempotency_key),
	account_type TEXT NOT NULL,
	account_id TEXT NOT NULL,
	delta INTEGER NOT NULL,
	direction TEXT NOT NULL,
	entry_type TEXT NOT NULL,
	balance_after INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_account ON ledger_entries(account_type, account_id);
CREATE TABLE IF NOT EXISTS faucet_claims (
	user_id TEXT PRIMARY KEY,
	last_claim_at INTEGER NOT NULL
);
`

// isDuplicateOperation reports whether err is the UNIQUE-constraint
// violation from re-inserting an already-applied idempotency key.
func isDuplicateOperation(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func (l *Ledger) beginOperation(ctx context.Context, tx *sql.Tx, idemKey, kind string) (alreadyApplied bool, err error) {
	_, err = tx.ExecContext(ctx, `INSERT INTO operations(idempotency_key, kind, created_at) VALUES (?, ?, ?)`,
		idemKey, kind, l.now().Unix())
	if err != nil {
		if isDuplicateOperation(err) {
			return true, nil
		}
		return false, fmt.Errorf("ledger: record operation: %w", err)
	}
	return false, nil
}

// recordEntry writes one ledger leg. It must run after the account's
// balance has already been mutated in the same transaction, since
// balance_after is read back from storage rather than computed in Go.
func (l *Ledger) recordEntry(ctx context.Context, tx *sql.Tx, idemKey, accountType, accountID string, delta int64, entryType, description string) error {
	balanceAfter, err := l.currentBalance(ctx, tx, accountType, accountID)
	if err != nil {
		return err
	}
	direction := "credit"
	if delta < 0 {
		direction = "debit"
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries(idempotency_key, account_type, account_id, delta, direction, entry_type, balance_after, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idemKey, accountType, accountID, delta, direction, entryType, balanceAfter, description, l.now().Unix())
	return err
}

func (l *Ledger) currentBalance(ctx context.Context, tx *sql.Tx, accountType, accountID string) (int64, error) {
	var (
		bal int64
		err error
	)
	switch accountType {
	case "wallet":
		err = tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, accountID).Scan(&bal)
	case "escrow":
		err = tx.QueryRowContext(ctx, `SELECT balance FROM table_escrows WHERE table_id = ?`, accountID).Scan(&bal)
	default:
		return 0, fmt.Errorf("ledger: unknown account type %q", accountType)
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read balance: %w", err)
	}
	return bal, nil
}

// Wallet returns a user's free-standing balance (chips not in any
// table's escrow). An unknown user reads as 0; no wallet row is created.
func (l *Ledger) Wallet(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read wallet: %w", err)
	}
	return balance, nil
}

// Escrow returns a table's current chip escrow.
func (l *Ledger) Escrow(ctx context.Context, tableID string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM table_escrows WHERE table_id = ?`, tableID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read escrow: %w", err)
	}
	return balance, nil
}

// TransferToEscrow moves amount chips from a user's wallet into a
// table's escrow (a buy-in or top-up, classified by entryType/description
// for the audit trail). Fails with Insufficient if the wallet balance is
// too low. Safe to retry with the same idempotencyKey.
func (l *Ledger) TransferToEscrow(ctx context.Context, idempotencyKey, userID, tableID string, amount int64, entryType, description string) error {
	if amount <= 0 {
		return pokererr.Invalid("transfer amount must be positive, got %d", amount)
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		done, err := l.beginOperation(ctx, tx, idempotencyKey, "transfer_to_escrow")
		if err != nil || done {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = balance - ? WHERE user_id = ? AND balance >= ?`, amount, userID, amount)
		if err != nil {
			return fmt.Errorf("ledger: debit wallet: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return pokererr.Insufficientf("wallet %s has insufficient balance for %d chips", userID, amount)
		}
		if err := l.recordEntry(ctx, tx, idempotencyKey, "wallet", userID, -amount, entryType, description); err != nil {
			return err
		}
		if err := l.upsertEscrow(ctx, tx, tableID, amount); err != nil {
			return err
		}
		return l.recordEntry(ctx, tx, idempotencyKey, "escrow", tableID, amount, entryType, description)
	})
}

// TransferFromEscrow moves amount chips from a table's escrow back into a
// user's wallet (a cash-out). Safe to retry with the same idempotencyKey.
func (l *Ledger) TransferFromEscrow(ctx context.Context, idempotencyKey, tableID, userID string, amount int64, entryType, description string) error {
	if amount <= 0 {
		return pokererr.Invalid("transfer amount must be positive, got %d", amount)
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		done, err := l.beginOperation(ctx, tx, idempotencyKey, "transfer_from_escrow")
		if err != nil || done {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE table_escrows SET balance = balance - ? WHERE table_id = ? AND balance >= ?`, amount, tableID, amount)
		if err != nil {
			return fmt.Errorf("ledger: debit escrow: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return pokererr.Wrap(pokererr.Internal, fmt.Sprintf("table %s escrow has insufficient balance for %d chips", tableID, amount), nil)
		}
		if err := l.recordEntry(ctx, tx, idempotencyKey, "escrow", tableID, -amount, entryType, description); err != nil {
			return err
		}
		if err := l.upsertWallet(ctx, tx, userID, amount); err != nil {
			return err
		}
		return l.recordEntry(ctx, tx, idempotencyKey, "wallet", userID, amount, entryType, description)
	})
}

// CreditEscrowServerFunded mints amount chips directly into a table's
// escrow with no matching wallet debit, for chips that were never anyone's
// free-standing balance (bot buy-ins). Recorded as a single EntryBonus
// leg so Reconcile still ties the escrow balance to its entry log; it is
// the one operation in this ledger that is not a zero-sum transfer.
func (l *Ledger) CreditEscrowServerFunded(ctx context.Context, idempotencyKey, tableID string, amount int64, description string) error {
	if amount <= 0 {
		return pokererr.Invalid("credit amount must be positive, got %d", amount)
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		done, err := l.beginOperation(ctx, tx, idempotencyKey, "credit_escrow_server_funded")
		if err != nil || done {
			return err
		}
		if err := l.upsertEscrow(ctx, tx, tableID, amount); err != nil {
			return err
		}
		return l.recordEntry(ctx, tx, idempotencyKey, "escrow", tableID, amount, EntryBonus, description)
	})
}

// ClaimFaucet credits amount chips to userID's wallet if cooldown has
// elapsed since their last claim. BEGIN IMMEDIATE serializes concurrent
// claims from the same user so two simultaneous requests cannot both
// observe "no prior claim" and double-credit.
func (l *Ledger) ClaimFaucet(ctx context.Context, idempotencyKey, userID string, amount int64, cooldown time.Duration) error {
	return l.withTx(ctx, func(tx *sql.Tx) error {
		done, err := l.beginOperation(ctx, tx, idempotencyKey, "claim_faucet")
		if err != nil || done {
			return err
		}
		var lastClaim int64
		err = tx.QueryRowContext(ctx, `SELECT last_claim_at FROM faucet_claims WHERE user_id = ?`, userID).Scan(&lastClaim)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("ledger: read faucet claim: %w", err)
		}
		now := l.now()
		if err == nil && now.Before(time.Unix(lastClaim, 0).Add(cooldown)) {
			return pokererr.New(pokererr.RateLimited, fmt.Sprintf("faucet cooldown active for %s", userID))
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO faucet_claims(user_id, last_claim_at) VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET last_claim_at = excluded.last_claim_at`, userID, now.Unix())
		if err != nil {
			return fmt.Errorf("ledger: record faucet claim: %w", err)
		}
		if err := l.upsertWallet(ctx, tx, userID, amount); err != nil {
			return err
		}
		return l.recordEntry(ctx, tx, idempotencyKey, "wallet", userID, amount, EntryFaucet, "faucet claim")
	})
}

func (l *Ledger) upsertWallet(ctx context.Context, tx *sql.Tx, userID string, delta int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO wallets(user_id, balance) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance`, userID, delta)
	if err != nil {
		return fmt.Errorf("ledger: credit wallet: %w", err)
	}
	return nil
}

func (l *Ledger) upsertEscrow(ctx context.Context, tx *sql.Tx, tableID string, delta int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO table_escrows(table_id, balance) VALUES (?, ?)
		ON CONFLICT(table_id) DO UPDATE SET balance = balance + excluded.balance`, tableID, delta)
	if err != nil {
		return fmt.Errorf("ledger: credit escrow: %w", err)
	}
	return nil
}

func (l *Ledger) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

// History returns the ledger_entries rows for a wallet, most recent
// first, for audit and client-facing statements.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT idempotency_key, account_type, account_id, delta, direction, entry_type, balance_after, description, created_at
		FROM ledger_entries WHERE account_type = 'wallet' AND account_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.IdempotencyKey, &e.AccountType, &e.AccountID, &e.Delta, &e.Direction, &e.EntryType, &e.BalanceAfter, &e.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("ledger: scan history: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReconcileReport summarizes a consistency check between stored balances
// and the entry log that should have produced them.
type ReconcileReport struct {
	WalletsChecked   int
	EscrowsChecked   int
	WalletMismatches []string
	EscrowMismatches []string
}

func (r ReconcileReport) Clean() bool {
	return len(r.WalletMismatches) == 0 && len(r.EscrowMismatches) == 0
}

// Reconcile recomputes every wallet and escrow balance as the sum of its
// ledger entries and compares it against the stored running balance.
// This is a periodic background check, not part of any hot path: a
// mismatch indicates a bug, not a condition callers should retry on.
func (l *Ledger) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	rows, err := l.db.QueryContext(ctx, `SELECT user_id, balance FROM wallets`)
	if err != nil {
		return report, fmt.Errorf("ledger: reconcile wallets: %w", err)
	}
	type balance struct {
		id      string
		balance int64
	}
	var wallets []balance
	for rows.Next() {
		var b balance
		if err := rows.Scan(&b.id, &b.balance); err != nil {
			rows.Close()
			return report, err
		}
		wallets = append(wallets, b)
	}
	rows.Close()

	for _, w := range wallets {
		report.WalletsChecked++
		var sum sql.NullInt64
		if err := l.db.QueryRowContext(ctx, `SELECT SUM(delta) FROM ledger_entries WHERE account_type='wallet' AND account_id=?`, w.id).Scan(&sum); err != nil {
			return report, fmt.Errorf("ledger: sum wallet entries: %w", err)
		}
		if sum.Int64 != w.balance {
			report.WalletMismatches = append(report.WalletMismatches, w.id)
		}
	}

	rows, err = l.db.QueryContext(ctx, `SELECT table_id, balance FROM table_escrows`)
	if err != nil {
		return report, fmt.Errorf("ledger: reconcile escrows: %w", err)
	}
	var escrows []balance
	for rows.Next() {
		var b balance
		if err := rows.Scan(&b.id, &b.balance); err != nil {
			rows.Close()
			return report, err
		}
		escrows = append(escrows, b)
	}
	rows.Close()

	for _, e := range escrows {
		report.EscrowsChecked++
		var sum sql.NullInt64
		if err := l.db.QueryRowContext(ctx, `SELECT SUM(delta) FROM ledger_entries WHERE account_type='escrow' AND account_id=?`, e.id).Scan(&sum); err != nil {
			return report, fmt.Errorf("ledger: sum escrow entries: %w", err)
		}
		if sum.Int64 != e.balance {
			report.EscrowMismatches = append(report.EscrowMismatches, e.id)
		}
	}

	return report, nil
}
