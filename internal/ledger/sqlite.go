package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the ledger in a sqlite database so a local node keeps
// its vaults across restarts.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps commits serial.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		pubkey TEXT PRIMARY KEY,
		lamports INTEGER NOT NULL,
		owner TEXT NOT NULL,
		data BLOB NOT NULL,
		executable INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signature TEXT NOT NULL,
		slot INTEGER NOT NULL,
		err TEXT NOT NULL DEFAULT '',
		logs TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner
		ON accounts(owner);

	CREATE INDEX IF NOT EXISTS idx_receipts_signature
		ON receipts(signature);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key solana.PublicKey) (*Account, error) {
	var (
		lamports   int64
		owner      string
		data       []byte
		executable bool
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT lamports, owner, data, executable FROM accounts WHERE pubkey = ?",
		key.String(),
	).Scan(&lamports, &owner, &data, &executable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(lamports, owner, data, executable)
}

func decodeRow(lamports int64, owner string, data []byte, executable bool) (*Account, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("stored owner %q: %w", owner, err)
	}
	return &Account{
		Lamports:   uint64(lamports),
		Owner:      ownerKey,
		Data:       data,
		Executable: executable,
	}, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, changes map[solana.PublicKey]*Account, receipt *Receipt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, acct := range changes {
		if acct == nil || acct.Empty() {
			if _, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE pubkey = ?", key.String()); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		data := acct.Data
		if data == nil {
			data = []byte{}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (pubkey, lamports, owner, data, executable)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(pubkey) DO UPDATE SET
			   lamports = excluded.lamports,
			   owner = excluded.owner,
			   data = excluded.data,
			   executable = excluded.executable`,
			key.String(), int64(acct.Lamports), acct.Owner.String(), data, acct.Executable,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}

	if receipt != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO receipts (signature, slot, err, logs, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			receipt.Signature, int64(receipt.Slot), receipt.Err, strings.Join(receipt.Logs, "\n"), receipt.Time,
		)
		if err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ProgramAccounts(ctx context.Context, owner solana.PublicKey) ([]KeyedAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pubkey, lamports, owner, data, executable
		 FROM accounts WHERE owner = ? ORDER BY pubkey`,
		owner.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyedAccount
	for rows.Next() {
		var (
			pubkey, ownerStr string
			lamports         int64
			data             []byte
			executable       bool
		)
		if err := rows.Scan(&pubkey, &lamports, &ownerStr, &data, &executable); err != nil {
			return nil, err
		}
		key, err := solana.PublicKeyFromBase58(pubkey)
		if err != nil {
			return nil, fmt.Errorf("stored pubkey %q: %w", pubkey, err)
		}
		acct, err := decodeRow(lamports, ownerStr, data, executable)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyedAccount{PublicKey: key, Account: acct})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Receipts(ctx context.Context, limit int) ([]*Receipt, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT signature, slot, err, logs, created_at
		 FROM receipts ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		var (
			r    Receipt
			slot int64
			logs string
			at   time.Time
		)
		if err := rows.Scan(&r.Signature, &slot, &r.Err, &logs, &at); err != nil {
			return nil, err
		}
		r.Slot = uint64(slot)
		r.Time = at
		if logs != "" {
			r.Logs = strings.Split(logs, "\n")
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
