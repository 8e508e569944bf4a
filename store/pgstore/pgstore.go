package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gavel/metrics"
	"gavel/store"
	"gavel/store/pgstore/migrations"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/tern/migrate"
	"github.com/prometheus/client_golang/prometheus"
)

type Store struct {
	db     connOrTx
	logger log.Logger
}

var _ store.Store = (*Store)(nil)

type connOrTx interface {
	Query(ctx context.Context, q string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, q string, args ...any) pgx.Row
	Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error)
}

func NewStore(ctx context.Context, connStr string, logger log.Logger) (_ *Store, err error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if config.MaxConnIdleTime == 0 {
		config.MaxConnIdleTime = 5 * time.Minute
	}

	if config.MaxConns == 0 {
		config.MaxConns = 4
	}

	if config.MinConns == 0 {
		config.MinConns = 1
	}

	if config.ConnConfig.ConnectTimeout == 0 {
		config.ConnConfig.ConnectTimeout = 5 * time.Second
	}

	config.ConnConfig.Logger = &pgDebugLogAdapter{
		Logger: log.With(logger, "submodule", "postgres"),
	}

	config.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		level.Debug(logger).Log("event", "new db connection")

		for _, q := range []string{
			`set timezone='UTC'`,
			`set lock_timeout='5s'`,
			`set statement_timeout='5s'`,
		} {
			if _, err := c.Exec(ctx, q); err != nil {
				return fmt.Errorf("db connection setup query %q: %w", q, err)
			}
		}

		return nil
	}

	level.Debug(logger).Log("msg", "connecting")

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	{
		var (
			user = config.ConnConfig.User
			host = config.ConnConfig.Host
			name = config.ConnConfig.Database
			fn   = func() stat { return pool.Stat() }
			pc   = newPoolCollector(user, host, name, fn)
		)
		if err := prometheus.Register(pc); err != nil {
			return nil, fmt.Errorf("metrics registration failed: %w", err)
		}
	}

	defer func() {
		if err != nil {
			pool.Close()
		}
	}()

	if err = pool.AcquireFunc(ctx, func(c *pgxpool.Conn) error {
		return migrateDB(ctx, c.Conn(), logger)
	}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{db: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	switch x := s.db.(type) {
	case *pgx.Conn:
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return x.Close(ctx)
	case *pgxpool.Pool:
		x.Close()
		return nil
	case pgx.Tx:
		return nil
	default:
		return fmt.Errorf("close with unknown DB type %T", s.db)
	}
}

func migrateDB(ctx context.Context, conn *pgx.Conn, logger log.Logger) error {
	m, err := migrate.NewMigratorEx(ctx, conn, "public.schema_version", &migrate.MigratorOptions{
		MigratorFS: migrations.FS,
	})
	if err != nil {
		return fmt.Errorf("new migrator: %w", err)
	}

	if err = m.LoadMigrations("."); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	if err = m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	level.Debug(logger).Log("msg", "migrations done")

	return nil
}

func (s *Store) Transact(ctx context.Context, f func(store.Store) error) error {
	retryable := func(err error) bool {
		if pgerr := &(pgconn.PgError{}); errors.As(err, &pgerr) {
			if pgerr.Code == "40001" { // concurrent updates
				return true
			}
		}
		return false
	}

	var err error
	for try, max := 1, 3; try <= max; try++ {
		err = s.transactDirect(ctx, f)
		switch {
		case err == nil:
			return nil
		case retryable(err):
			level.Debug(s.logger).Log("msg", "retrying transaction", "err", err, "attempt", fmt.Sprintf("%d/%d", try, max))
		default:
			return err
		}
	}

	return err
}

func (s *Store) transactDirect(ctx context.Context, f func(store.Store) error) error {
	var entered time.Time
	defer func(begin time.Time) {
		if !entered.IsZero() {
			metrics.OpWait("pgstore_transactdirect", entered.Sub(begin))
		}
	}(time.Now())

	switch x := s.db.(type) {
	case *pgx.Conn:
		return x.BeginTxFunc(ctx, pgx.TxOptions{
			IsoLevel: pgx.Serializable,
		}, func(tx pgx.Tx) error {
			entered = time.Now()
			return f(&Store{
				db:     tx,
				logger: s.logger,
			})
		})

	case *pgxpool.Pool:
		return x.BeginTxFunc(ctx, pgx.TxOptions{
			IsoLevel: pgx.Serializable,
		}, func(tx pgx.Tx) error {
			entered = time.Now()
			return f(&Store{
				db:     tx,
				logger: s.logger,
			})
		})

	case pgx.Tx:
		return x.BeginFunc(ctx, func(tx pgx.Tx) error {
			entered = time.Now()
			return f(&Store{
				db:     tx,
				logger: s.logger,
			})
		})

	default:
		return fmt.Errorf("unknown DB type %T", s.db)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRow(ctx, `select 1`).Scan(&n)
}

//
// auctions
//

const insertAuctionQuery = `
insert into auctions
(
	id,
	owner,
	bid_increment,
	start_block,
	end_block,
	metadata_ref,
	canceled,
	highest_bidder,
	highest_binding_bid,
	owner_has_withdrawn
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
returning
	created_at,
	updated_at
`

func (s *Store) InsertAuction(ctx context.Context, a *store.Auction) error {
	if a.ID.IsNil() {
		var err error
		if a.ID, err = uuid.NewV4(); err != nil {
			return fmt.Errorf("generate auction ID: %w", err)
		}
	}

	return s.db.QueryRow(ctx, insertAuctionQuery,
		a.ID,
		a.Owner,
		a.BidIncrement,
		a.StartBlock,
		a.EndBlock,
		a.MetadataRef,
		a.Canceled,
		nullableText(a.HighestBidder),
		a.HighestBindingBid,
		a.OwnerHasWithdrawn,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

const updateAuctionQuery = `
update auctions
set
	canceled            = $2,
	highest_bidder      = $3,
	highest_binding_bid = $4,
	owner_has_withdrawn = $5,
	updated_at          = now()
where
	id = $1
`

func (s *Store) UpdateAuction(ctx context.Context, a *store.Auction) error {
	result, err := s.db.Exec(ctx, updateAuctionQuery,
		a.ID,
		a.Canceled,
		nullableText(a.HighestBidder),
		a.HighestBindingBid,
		a.OwnerHasWithdrawn,
	)
	if err != nil {
		return fmt.Errorf("update auction: %w", err)
	}

	if result.RowsAffected() != 1 {
		return store.ErrNotFound
	}

	return nil
}

const selectAuctionQuery = `
select
	id,
	owner,
	bid_increment,
	start_block,
	end_block,
	metadata_ref,
	canceled,
	coalesce(highest_bidder, ''),
	highest_binding_bid,
	owner_has_withdrawn,
	created_at,
	updated_at
from
	auctions
where
	id = $1
`

func (s *Store) SelectAuction(ctx context.Context, id uuid.UUID) (*store.Auction, error) {
	var a store.Auction
	err := s.db.QueryRow(ctx, selectAuctionQuery, id).Scan(
		&a.ID,
		&a.Owner,
		&a.BidIncrement,
		&a.StartBlock,
		&a.EndBlock,
		&a.MetadataRef,
		&a.Canceled,
		&a.HighestBidder,
		&a.HighestBindingBid,
		&a.OwnerHasWithdrawn,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, convertError(err)
	}
	return &a, nil
}

const listAuctionsQuery = `
select
	id,
	owner,
	bid_increment,
	start_block,
	end_block,
	metadata_ref,
	canceled,
	coalesce(highest_bidder, ''),
	highest_binding_bid,
	owner_has_withdrawn,
	created_at,
	updated_at
from
	auctions
order by
	seq asc
`

func (s *Store) ListAuctions(ctx context.Context) ([]*store.Auction, error) {
	rows, err := s.db.Query(ctx, listAuctionsQuery)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var as []*store.Auction
	for rows.Next() {
		var a store.Auction
		if err = rows.Scan(
			&a.ID,
			&a.Owner,
			&a.BidIncrement,
			&a.StartBlock,
			&a.EndBlock,
			&a.MetadataRef,
			&a.Canceled,
			&a.HighestBidder,
			&a.HighestBindingBid,
			&a.OwnerHasWithdrawn,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		as = append(as, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan err: %w", err)
	}

	return as, nil
}

//
// escrows
//

const upsertEscrowQuery = `
insert into escrows
(
	auction_id,
	bidder,
	amount
)
values ($1, $2, $3)
on conflict (auction_id, bidder) do update
set
	amount     = excluded.amount,
	updated_at = now()
returning
	created_at,
	updated_at
`

func (s *Store) UpsertEscrow(ctx context.Context, e *store.Escrow) error {
	return s.db.QueryRow(ctx, upsertEscrowQuery,
		e.AuctionID,
		e.Bidder,
		e.Amount,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

const selectEscrowQuery = `
select
	auction_id,
	bidder,
	amount,
	created_at,
	updated_at
from
	escrows
where
	auction_id = $1
	and bidder = $2
`

func (s *Store) SelectEscrow(ctx context.Context, auctionID uuid.UUID, bidder string) (*store.Escrow, error) {
	var e store.Escrow
	err := s.db.QueryRow(ctx, selectEscrowQuery, auctionID, bidder).Scan(
		&e.AuctionID,
		&e.Bidder,
		&e.Amount,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, convertError(err)
	}
	return &e, nil
}

const listEscrowsQuery = `
select
	auction_id,
	bidder,
	amount,
	created_at,
	updated_at
from
	escrows
where
	auction_id = $1
order by
	bidder asc
`

func (s *Store) ListEscrows(ctx context.Context, auctionID uuid.UUID) ([]*store.Escrow, error) {
	rows, err := s.db.Query(ctx, listEscrowsQuery, auctionID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var es []*store.Escrow
	for rows.Next() {
		var e store.Escrow
		if err = rows.Scan(
			&e.AuctionID,
			&e.Bidder,
			&e.Amount,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		es = append(es, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan err: %w", err)
	}

	return es, nil
}

//
// events
//

const insertEventQuery = `
insert into events
(
	id,
	auction_id,
	kind,
	actor,
	amount,
	highest_bidder,
	highest_binding_bid,
	auction_count
)
values ($1, $2, $3, $4, $5, $6, $7, $8)
returning
	created_at
`

func (s *Store) InsertEvent(ctx context.Context, e *store.Event) error {
	if e.ID.IsNil() {
		var err error
		if e.ID, err = uuid.NewV4(); err != nil {
			return fmt.Errorf("generate event ID: %w", err)
		}
	}

	return s.db.QueryRow(ctx, insertEventQuery,
		e.ID,
		e.AuctionID,
		e.Kind,
		nullableText(e.Actor),
		e.Amount,
		nullableText(e.HighestBidder),
		e.HighestBindingBid,
		e.AuctionCount,
	).Scan(&e.CreatedAt)
}

const listEventsQuery = `
select
	id,
	auction_id,
	kind,
	coalesce(actor, ''),
	amount,
	coalesce(highest_bidder, ''),
	highest_binding_bid,
	auction_count,
	created_at
from
	events
where
	auction_id = $1
order by
	seq asc
`

func (s *Store) ListEvents(ctx context.Context, auctionID uuid.UUID) ([]*store.Event, error) {
	rows, err := s.db.Query(ctx, listEventsQuery, auctionID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var es []*store.Event
	for rows.Next() {
		var (
			e    store.Event
			kind string
		)
		if err = rows.Scan(
			&e.ID,
			&e.AuctionID,
			&kind,
			&e.Actor,
			&e.Amount,
			&e.HighestBidder,
			&e.HighestBindingBid,
			&e.AuctionCount,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		e.Kind = store.ParseEventKind(kind)

		es = append(es, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan err: %w", err)
	}

	return es, nil
}

//
//
//

// nullableText stores empty strings as NULL. Reads coalesce back to ''.
func nullableText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Status: pgtype.Null}
	}
	return pgtype.Text{String: s, Status: pgtype.Present}
}

func convertError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

type pgDebugLogAdapter struct{ log.Logger }

func (a *pgDebugLogAdapter) Log(ctx context.Context, pgxlevel pgx.LogLevel, msg string, data map[string]interface{}) {
	keyvals := []interface{}{
		"pgxlevel", pgxlevel.String(),
		"msg", msg,
	}
	for k, v := range data {
		keyvals = append(keyvals, k, fmt.Sprintf("%v", v))
	}
	level.Debug(a.Logger).Log(keyvals...)
}
