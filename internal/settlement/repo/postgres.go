// Package repo implementa o ledger de apostas em Postgres. Toda mutação de
// saldo é um incremento/decremento condicional em SQL pareado com a linha em
// transactions dentro da mesma transação de banco.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
)

// Postgres implementa os stores de lifecycle, ledger e prize
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const wagerCols = `id, name, COALESCE(description, ''), category, side1, side2, is_public,
	side1_amount, side2_amount, wager_status, winning_side, wager_end_time,
	created_by_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWager(r rowScanner) (*domain.Wager, error) {
	var (
		w       domain.Wager
		status  string
		winning sql.NullString
	)
	if err := r.Scan(&w.ID, &w.Name, &w.Description, &w.Category, &w.Side1, &w.Side2, &w.IsPublic,
		&w.Side1Amount, &w.Side2Amount, &status, &winning, &w.WagerEndTime,
		&w.CreatedByID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.WagerStatus = domain.WagerStatus(status)
	if winning.Valid {
		s := domain.Side(winning.String)
		w.WinningSide = &s
	}
	return &w, nil
}

// storeErr classifica o erro do driver: sem linhas vira ErrNotFound, o
// resto vira ErrStore mantendo a causa original
func storeErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) CreateWager(ctx context.Context, creatorID int64, in domain.NewWager) (*domain.Wager, error) {
	var desc any
	if in.Description != "" {
		desc = in.Description
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO wagers(name, description, category, side1, side2, is_public, wager_end_time, created_by_id)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING `+wagerCols,
		in.Name, desc, in.Category, in.Side1, in.Side2, in.IsPublic, in.WagerEndTime, creatorID)
	w, err := scanWager(row)
	if err != nil {
		return nil, storeErr("create wager", err)
	}
	return w, nil
}

func (p *Postgres) GetWager(ctx context.Context, id int64) (*domain.Wager, error) {
	w, err := scanWager(p.db.QueryRowContext(ctx, `SELECT `+wagerCols+` FROM wagers WHERE id=$1`, id))
	if err != nil {
		return nil, storeErr("get wager", err)
	}
	return w, nil
}

// ListWagers aplica os filtros informados, mais recentes primeiro
func (p *Postgres) ListWagers(ctx context.Context, f domain.WagerFilter) ([]domain.Wager, error) {
	status := f.Status
	if status == "" {
		status = domain.WagerActive
	}
	conds := []string{"wager_status=$1"}
	args := []any{string(status)}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category=$%d", len(args)))
	}
	if f.IsPublic != nil {
		args = append(args, *f.IsPublic)
		conds = append(conds, fmt.Sprintf("is_public=$%d", len(args)))
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT `+wagerCols+` FROM wagers WHERE `+strings.Join(conds, " AND ")+` ORDER BY created_at DESC, id DESC`,
		args...)
	if err != nil {
		return nil, storeErr("list wagers", err)
	}
	defer rows.Close()

	out := []domain.Wager{}
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, storeErr("scan wager", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list wagers", err)
	}
	return out, nil
}

func (p *Postgres) ListExpiredActive(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM wagers WHERE wager_status='active' AND wager_end_time < $1 ORDER BY id`, now)
	if err != nil {
		return nil, storeErr("list expired wagers", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan expired wager", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list expired wagers", err)
	}
	return ids, nil
}

// EndWager é o guard de at-most-once: só quem vence o UPDATE condicional
// grava o settlement run e segue para os pagamentos
func (p *Postgres) EndWager(ctx context.Context, id int64, side domain.Side) (*domain.Wager, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin end wager", err)
	}
	defer tx.Rollback()

	w, err := scanWager(tx.QueryRowContext(ctx, `
		UPDATE wagers SET wager_status='ended', winning_side=$2, updated_at=NOW()
		WHERE id=$1 AND wager_status='active'
		RETURNING `+wagerCols, id, string(side)))
	if errors.Is(err, sql.ErrNoRows) {
		if err := exists(ctx, tx, `SELECT 1 FROM wagers WHERE id=$1`, id); err != nil {
			return nil, storeErr("end wager", err)
		}
		return nil, domain.ErrAlreadySettled
	}
	if err != nil {
		return nil, storeErr("end wager", err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO settlement_runs(wager_id, winning_side, status) VALUES($1,$2,'pending')`,
		id, string(side)); err != nil {
		return nil, storeErr("insert settlement run", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, storeErr("commit end wager", err)
	}
	return w, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	var one int
	return tx.QueryRowContext(ctx, query, args...).Scan(&one)
}

// WinningStakes lista as linhas prediction/VS do lado vencedor, em valor absoluto
func (p *Postgres) WinningStakes(ctx context.Context, wagerID int64, side domain.Side) ([]domain.Stake, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, ABS(amount) FROM transactions
		WHERE wager_id=$1 AND type='prediction' AND currency='VS' AND side=$2
		ORDER BY id`, wagerID, string(side))
	if err != nil {
		return nil, storeErr("winning stakes", err)
	}
	defer rows.Close()

	var out []domain.Stake
	for rows.Next() {
		var s domain.Stake
		if err := rows.Scan(&s.UserID, &s.Amount); err != nil {
			return nil, storeErr("scan stake", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("winning stakes", err)
	}
	return out, nil
}

func (p *Postgres) CompleteSettlementRun(ctx context.Context, wagerID int64) error {
	if _, err := p.db.ExecContext(ctx,
		`UPDATE settlement_runs SET status='completed', completed_at=NOW() WHERE wager_id=$1`, wagerID); err != nil {
		return storeErr("complete settlement run", err)
	}
	return nil
}

func (p *Postgres) ListPendingSettlementRuns(ctx context.Context) ([]domain.SettlementRun, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT wager_id, winning_side, status, created_at FROM settlement_runs
		WHERE status='pending' ORDER BY created_at`)
	if err != nil {
		return nil, storeErr("list pending settlement runs", err)
	}
	defer rows.Close()

	var out []domain.SettlementRun
	for rows.Next() {
		var (
			r            domain.SettlementRun
			side, status string
		)
		if err := rows.Scan(&r.WagerID, &side, &status, &r.CreatedAt); err != nil {
			return nil, storeErr("scan settlement run", err)
		}
		r.WinningSide = domain.Side(side)
		r.Status = domain.RunStatus(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list pending settlement runs", err)
	}
	return out, nil
}

// PlacePrediction debita a carteira com decremento condicional, soma a stake
// no lado escolhido e grava a transação prediction/VS. Ordem de lock fixa:
// carteira, depois aposta.
func (p *Postgres) PlacePrediction(ctx context.Context, pr domain.Prediction) (*domain.PredictionResult, error) {
	var column string
	switch pr.Side {
	case domain.Side1:
		column = "side1_amount"
	case domain.Side2:
		column = "side2_amount"
	default:
		return nil, fmt.Errorf("%w: side must be 'side1' or 'side2'", domain.ErrValidation)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin prediction", err)
	}
	defer tx.Rollback()

	res := domain.PredictionResult{}
	err = tx.QueryRowContext(ctx, `
		UPDATE wallets SET vs_amount = vs_amount - $1, updated_at=NOW()
		WHERE user_id=$2 AND vs_amount >= $1
		RETURNING id, vs_amount`, pr.Amount, pr.UserID).Scan(&res.WalletID, &res.VSBalance)
	if errors.Is(err, sql.ErrNoRows) {
		if err := exists(ctx, tx, `SELECT 1 FROM wallets WHERE user_id=$1`, pr.UserID); err != nil {
			return nil, storeErr("user wallet", err)
		}
		return nil, domain.ErrInsufficientFunds
	}
	if err != nil {
		return nil, storeErr("debit wallet", err)
	}

	w, err := scanWager(tx.QueryRowContext(ctx, `
		UPDATE wagers SET `+column+` = `+column+` + $1, updated_at=NOW()
		WHERE id=$2 AND wager_status='active' AND wager_end_time > $3
		RETURNING `+wagerCols, pr.Amount, pr.WagerID, pr.At))
	if errors.Is(err, sql.ErrNoRows) {
		if err := exists(ctx, tx, `SELECT 1 FROM wagers WHERE id=$1`, pr.WagerID); err != nil {
			return nil, storeErr("wager", err)
		}
		return nil, fmt.Errorf("%w: wager is not active", domain.ErrInvalidState)
	}
	if err != nil {
		return nil, storeErr("add stake", err)
	}
	res.Wager = *w

	if err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions(user_id, wallet_id, wager_id, type, currency, amount, side, status)
		VALUES($1,$2,$3,'prediction','VS',$4,$5,'completed')
		RETURNING id`,
		pr.UserID, res.WalletID, pr.WagerID, pr.Amount, string(pr.Side)).Scan(&res.TransactionID); err != nil {
		return nil, storeErr("insert prediction", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, storeErr("commit prediction", err)
	}
	return &res, nil
}

// CreditUSDC grava a transação com a referência única e incrementa
// usdc_amount. Referência repetida => domain.ErrAlreadyApplied, sem crédito.
func (p *Postgres) CreditUSDC(ctx context.Context, c domain.Credit) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin credit", err)
	}
	defer tx.Rollback()

	var walletID int64
	if err = tx.QueryRowContext(ctx, `SELECT id FROM wallets WHERE user_id=$1`, c.UserID).Scan(&walletID); err != nil {
		return 0, storeErr("user wallet", err)
	}

	wagerID := sql.NullInt64{}
	if c.WagerID != nil {
		wagerID = sql.NullInt64{Int64: *c.WagerID, Valid: true}
	}

	var txID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions(user_id, wallet_id, wager_id, type, currency, amount, status, reference)
		VALUES($1,$2,$3,$4,'USDC',$5,'completed',$6)
		ON CONFLICT (reference) DO NOTHING
		RETURNING id`,
		c.UserID, walletID, wagerID, string(c.Type), c.Amount, c.Reference).Scan(&txID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAlreadyApplied
	}
	if err != nil {
		return 0, storeErr("insert credit", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET usdc_amount = usdc_amount + $1, updated_at=NOW() WHERE id=$2`,
		c.Amount, walletID); err != nil {
		return 0, storeErr("credit wallet", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, storeErr("commit credit", err)
	}
	return txID, nil
}

// SumPredictions soma no intervalo semiaberto [from, until)
func (p *Postgres) SumPredictions(ctx context.Context, from, until time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ABS(amount)), 0) FROM transactions
		WHERE type='prediction' AND currency='VS' AND created_at >= $1 AND created_at < $2`,
		from, until).Scan(&sum); err != nil {
		return decimal.Zero, storeErr("sum predictions", err)
	}
	return sum, nil
}

// PeriodPredictions traz as predictions do período com o lado vencedor da
// aposta (NULL enquanto ativa)
func (p *Postgres) PeriodPredictions(ctx context.Context, from, until time.Time) ([]domain.PeriodPrediction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.user_id, ABS(t.amount), t.side, t.created_at, w.winning_side
		FROM transactions t
		LEFT JOIN wagers w ON w.id = t.wager_id
		WHERE t.type='prediction' AND t.currency='VS' AND t.created_at >= $1 AND t.created_at < $2
		ORDER BY t.id`, from, until)
	if err != nil {
		return nil, storeErr("period predictions", err)
	}
	defer rows.Close()

	var out []domain.PeriodPrediction
	for rows.Next() {
		var (
			pp            domain.PeriodPrediction
			side, winning sql.NullString
		)
		if err := rows.Scan(&pp.UserID, &pp.Amount, &side, &pp.CreatedAt, &winning); err != nil {
			return nil, storeErr("scan period prediction", err)
		}
		pp.Side = nullSide(side)
		pp.WinningSide = nullSide(winning)
		out = append(out, pp)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("period predictions", err)
	}
	return out, nil
}

func nullSide(ns sql.NullString) *domain.Side {
	if !ns.Valid {
		return nil
	}
	s := domain.Side(ns.String)
	return &s
}

// ClaimPrizeRun grava o run e congela as alocações. Quando o run já existe,
// devolve o que está gravado (pending) ou ErrAlreadyExecuted (completed).
// Um run com outro início cuja janela intercepte a nova também é
// ErrAlreadyExecuted: as mesmas predictions não podem ser premiadas duas vezes.
func (p *Postgres) ClaimPrizeRun(ctx context.Context, run domain.PrizeRun, allocs []domain.Allocation) (domain.PrizeRun, []domain.Allocation, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PrizeRun{}, nil, false, storeErr("begin prize run", err)
	}
	defer tx.Rollback()

	var overlapping time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT period_start FROM prize_runs
		WHERE period_start <> $1 AND period_start <= $2 AND period_end >= $1
		ORDER BY period_start LIMIT 1`, run.PeriodStart, run.PeriodEnd).Scan(&overlapping)
	switch {
	case err == nil:
		return domain.PrizeRun{}, nil, false, overlapErr(overlapping)
	case !errors.Is(err, sql.ErrNoRows):
		return domain.PrizeRun{}, nil, false, storeErr("check overlapping prize runs", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO prize_runs(period_start, period_end, total_spent, pool, total_points, status)
		VALUES($1,$2,$3,$4,$5,'pending')
		ON CONFLICT (period_start) DO NOTHING`,
		run.PeriodStart, run.PeriodEnd, run.TotalSpent, run.Pool, run.TotalPoints)
	if isExclusionViolation(err) {
		// outro claim concorrente gravou uma janela sobreposta
		return domain.PrizeRun{}, nil, false, fmt.Errorf("%w: window overlaps a concurrent prize run", domain.ErrAlreadyExecuted)
	}
	if err != nil {
		return domain.PrizeRun{}, nil, false, storeErr("insert prize run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.PrizeRun{}, nil, false, storeErr("insert prize run", err)
	}

	if n == 1 {
		for _, a := range allocs {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO prize_allocations(period_start, user_id, amount) VALUES($1,$2,$3)`,
				run.PeriodStart, a.UserID, a.Amount); err != nil {
				return domain.PrizeRun{}, nil, false, storeErr("insert prize allocation", err)
			}
		}
		if err = tx.Commit(); err != nil {
			return domain.PrizeRun{}, nil, false, storeErr("commit prize run", err)
		}
		run.Status = domain.RunPending
		return run, allocs, true, nil
	}

	var (
		existing domain.PrizeRun
		status   string
	)
	if err = tx.QueryRowContext(ctx, `
		SELECT period_start, period_end, total_spent, pool, total_points, status
		FROM prize_runs WHERE period_start=$1`, run.PeriodStart).
		Scan(&existing.PeriodStart, &existing.PeriodEnd, &existing.TotalSpent, &existing.Pool, &existing.TotalPoints, &status); err != nil {
		return domain.PrizeRun{}, nil, false, storeErr("load prize run", err)
	}
	existing.Status = domain.RunStatus(status)
	if existing.Status == domain.RunCompleted {
		return domain.PrizeRun{}, nil, false, domain.ErrAlreadyExecuted
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT user_id, amount FROM prize_allocations WHERE period_start=$1 ORDER BY user_id`, run.PeriodStart)
	if err != nil {
		return domain.PrizeRun{}, nil, false, storeErr("load prize allocations", err)
	}
	defer rows.Close()

	var stored []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.UserID, &a.Amount); err != nil {
			return domain.PrizeRun{}, nil, false, storeErr("scan prize allocation", err)
		}
		stored = append(stored, a)
	}
	if err := rows.Err(); err != nil {
		return domain.PrizeRun{}, nil, false, storeErr("load prize allocations", err)
	}
	return existing, stored, false, nil
}

func overlapErr(start time.Time) error {
	return fmt.Errorf("%w: window overlaps prize run starting %s",
		domain.ErrAlreadyExecuted, start.UTC().Format(time.RFC3339))
}

// isExclusionViolation reconhece a constraint prize_runs_no_overlap
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23P01"
}

func (p *Postgres) CompletePrizeRun(ctx context.Context, periodStart time.Time) error {
	if _, err := p.db.ExecContext(ctx,
		`UPDATE prize_runs SET status='completed', completed_at=NOW() WHERE period_start=$1`, periodStart); err != nil {
		return storeErr("complete prize run", err)
	}
	return nil
}
