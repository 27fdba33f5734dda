// postgres предоставляет реализацию storage.UserDirectory на базе PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// UsersDirectory — каталог пользователей (только чтение).
type UsersDirectory struct {
	db *pgxpool.Pool
}

// Проверка выполнения контракта верхнего уровня.
var _ storage.UserDirectory = (*UsersDirectory)(nil)

// New создает и инициализирует пул соединений к PostgreSQL.
func New(ctx context.Context, dbURL string) (*UsersDirectory, error) {
	const op = "storage/postgres/New"

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &UsersDirectory{db: db}, nil
}

// Close закрывает пул соединений.
func (d *UsersDirectory) Close() {
	d.db.Close()
}

// Ping — readiness каталога.
func (d *UsersDirectory) Ping(ctx context.Context) error {
	return d.db.Ping(ctx)
}

// userColumns — единый порядок колонок для SELECT и scanUser.
const userColumns = `id, username, display_name, role, avatar_url, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var (
		u    models.User
		role string
	)

	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &role, &u.AvatarURL, &u.CreatedAt); err != nil {
		return models.User{}, err
	}

	u.Role = models.Role(role)
	if u.Role != models.RoleAdmin {
		u.Role = models.RoleUser
	}

	return u, nil
}

// UsersByIDs загружает пользователей одним запросом ANY($1).
// Отсутствующие id в результат не попадают.
func (d *UsersDirectory) UsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	const op = "storage/postgres/UsersByIDs"

	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := d.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}

		out[u.ID] = u
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
	}

	return out, nil
}
