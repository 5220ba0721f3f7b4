package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `create table if not exists app_state (
	key        text primary key,
	value_text text not null,
	updated_at timestamptz not null default now()
)`

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

func NewStore(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create app_state: %w", err)
	}
	return &Store{db: db, timeout: 5 * time.Second}, nil
}

func (s *Store) GetItem(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	var value string
	err := s.db.QueryRowContext(ctx, `select value_text from app_state where key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetItem(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`insert into app_state(key, value_text, updated_at)
		 values ($1, $2, now())
		 on conflict (key) do update
		 set value_text = excluded.value_text, updated_at = now()`,
		key, value,
	)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
