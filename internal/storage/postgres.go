package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Cuffsss/studio/internal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(ctx context.Context, dsn string, logger internal.Logger) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Errorf("failed to ping postgres: %v", err)
		return nil, err
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		logger.Errorf("failed to migrate postgres: %v", err)
		return nil, err
	}
	return &PostgresStorage{pool: pool, logger: logger}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("storage: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("storage: migrating database: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

func mapError(err error, what string) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("storage: %s: %w", what, internal.ErrNotFound)
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		return fmt.Errorf("storage: %s: %w", what, internal.ErrConflict)
	}
	return fmt.Errorf("storage: %s: %w", what, err)
}

// --- UserRepository ---
const userColumns = `id, email, name, password_hash, COALESCE(organization_id, ''), workspace_id, role, created_at`

func (p *PostgresStorage) CreateUser(ctx context.Context, user *internal.User) error {
	if err := internal.ValidateRecord(user); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO users (id, email, name, password_hash, organization_id, workspace_id, role, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, COALESCE(NULLIF($7, ''), 'admin'), $8)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.OrganizationID, user.WorkspaceID, string(user.Role), user.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to insert user: %v", err)
		return mapError(err, "user "+user.Email)
	}
	return nil
}

func (p *PostgresStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, id)
}

func (p *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*internal.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, email)
}

// UpdateUser replaces the stored user. The email address is kept.
func (p *PostgresStorage) UpdateUser(ctx context.Context, user *internal.User) error {
	if err := internal.ValidateRecord(user); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `UPDATE users SET
			name = $2,
			password_hash = $3,
			organization_id = NULLIF($4, ''),
			workspace_id = $5,
			role = COALESCE(NULLIF($6, ''), 'admin')
		WHERE id = $1`,
		user.ID, user.Name, user.PasswordHash, user.OrganizationID, user.WorkspaceID, string(user.Role))
	if err != nil {
		p.logger.Errorf("failed to update user: %v", err)
		return mapError(err, "user "+user.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %s: %w", user.ID, internal.ErrNotFound)
	}
	return nil
}

func (p *PostgresStorage) ListMembers(ctx context.Context, organizationID string) ([]internal.User, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE organization_id = $1 ORDER BY created_at`, organizationID)
	if err != nil {
		p.logger.Errorf("failed to query members: %v", err)
		return nil, err
	}
	defer rows.Close()

	members := []internal.User{}
	for rows.Next() {
		u, err := scanUser(rows, organizationID)
		if err != nil {
			p.logger.Errorf("failed to scan member: %v", err)
			return nil, err
		}
		members = append(members, *u)
	}
	return members, rows.Err()
}

func scanUser(row pgx.Row, key string) (*internal.User, error) {
	var u internal.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.OrganizationID, &u.WorkspaceID, &role, &u.CreatedAt); err != nil {
		return nil, mapError(err, "user "+key)
	}
	u.Role = internal.Role(role)
	return &u, nil
}

// --- OrganizationRepository ---
func (p *PostgresStorage) CreateOrganization(ctx context.Context, org *internal.Organization) error {
	if err := internal.ValidateRecord(org); err != nil {
		return err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return mapError(err, "organization "+org.ID)
	}
	defer tx.Rollback(ctx)

	var current, workspace string
	err = tx.QueryRow(ctx, `SELECT COALESCE(organization_id, ''), workspace_id FROM users WHERE id = $1 FOR UPDATE`, org.OwnerID).
		Scan(&current, &workspace)
	if err != nil {
		return mapError(err, "organization owner "+org.OwnerID)
	}
	if current != "" || (workspace != "" && workspace != org.OwnerID) {
		return fmt.Errorf("storage: user %s already belongs to an organization: %w", org.OwnerID, internal.ErrConflict)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO organizations (id, name, owner_id, invite_token, created_at) VALUES ($1, $2, $3, $4, $5)`,
		org.ID, org.Name, org.OwnerID, org.InviteToken, org.CreatedAt); err != nil {
		p.logger.Errorf("failed to insert organization: %v", err)
		return mapError(err, "organization "+org.ID)
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET organization_id = $1, role = 'admin' WHERE id = $2`, org.ID, org.OwnerID); err != nil {
		p.logger.Errorf("failed to attach organization owner: %v", err)
		return mapError(err, "organization owner "+org.OwnerID)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "organization "+org.ID)
	}
	return nil
}

const organizationColumns = `id, name, owner_id, invite_token, created_at`

func (p *PostgresStorage) GetOrganization(ctx context.Context, id string) (*internal.Organization, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	return scanOrganization(row, id)
}

func (p *PostgresStorage) GetOrganizationByInvite(ctx context.Context, token string) (*internal.Organization, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE invite_token = $1`, token)
	return scanOrganization(row, "invite")
}

// UpdateOrganization replaces the name and invite token. The owner is fixed.
func (p *PostgresStorage) UpdateOrganization(ctx context.Context, org *internal.Organization) error {
	if err := internal.ValidateRecord(org); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `UPDATE organizations SET name = $2, invite_token = $3 WHERE id = $1`, org.ID, org.Name, org.InviteToken)
	if err != nil {
		p.logger.Errorf("failed to update organization: %v", err)
		return mapError(err, "organization "+org.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: organization %s: %w", org.ID, internal.ErrNotFound)
	}
	return nil
}

func scanOrganization(row pgx.Row, key string) (*internal.Organization, error) {
	var o internal.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.OwnerID, &o.InviteToken, &o.CreatedAt); err != nil {
		return nil, mapError(err, "organization "+key)
	}
	return &o, nil
}

// --- SettingsRepository ---
func (p *PostgresStorage) GetSettings(ctx context.Context, userID string) (internal.Settings, error) {
	var st internal.Settings
	err := p.pool.QueryRow(ctx, `SELECT checkup_interval_minutes, alarm_interval_minutes, notifications_enabled FROM settings WHERE user_id = $1`, userID).
		Scan(&st.CheckupIntervalMinutes, &st.AlarmIntervalMinutes, &st.NotificationsEnabled)
	if err != nil {
		return internal.Settings{}, mapError(err, "settings for "+userID)
	}
	return st, nil
}

func (p *PostgresStorage) SaveSettings(ctx context.Context, userID string, st internal.Settings) error {
	if err := internal.ValidateRecord(st); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO settings (user_id, checkup_interval_minutes, alarm_interval_minutes, notifications_enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			checkup_interval_minutes = EXCLUDED.checkup_interval_minutes,
			alarm_interval_minutes = EXCLUDED.alarm_interval_minutes,
			notifications_enabled = EXCLUDED.notifications_enabled`,
		userID, st.CheckupIntervalMinutes, st.AlarmIntervalMinutes, st.NotificationsEnabled)
	if err != nil {
		p.logger.Errorf("failed to upsert settings: %v", err)
		return mapError(err, "settings for "+userID)
	}
	return nil
}

// --- PersonRepository ---
func (p *PostgresStorage) SavePerson(ctx context.Context, person *internal.Person) error {
	if err := internal.ValidateRecord(person); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `INSERT INTO people (id, owner_id, name, age, notes, notifications_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			notes = EXCLUDED.notes,
			notifications_enabled = EXCLUDED.notifications_enabled
		WHERE people.owner_id = EXCLUDED.owner_id`,
		person.ID, person.OwnerID, person.Name, person.Age, person.Notes, person.NotificationsEnabled, person.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to upsert person: %v", err)
		return mapError(err, "person "+person.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: person %s: %w", person.ID, internal.ErrConflict)
	}
	return nil
}

func (p *PostgresStorage) GetPerson(ctx context.Context, ownerID, id string) (*internal.Person, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, owner_id, name, age, notes, notifications_enabled, created_at FROM people WHERE id = $1 AND owner_id = $2`, id, ownerID)
	var person internal.Person
	if err := row.Scan(&person.ID, &person.OwnerID, &person.Name, &person.Age, &person.Notes, &person.NotificationsEnabled, &person.CreatedAt); err != nil {
		return nil, mapError(err, "person "+id)
	}
	return &person, nil
}

func (p *PostgresStorage) ListPeople(ctx context.Context, ownerID string) ([]internal.Person, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, owner_id, name, age, notes, notifications_enabled, created_at FROM people WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		p.logger.Errorf("failed to query people: %v", err)
		return nil, err
	}
	defer rows.Close()

	people := []internal.Person{}
	for rows.Next() {
		var person internal.Person
		if err := rows.Scan(&person.ID, &person.OwnerID, &person.Name, &person.Age, &person.Notes, &person.NotificationsEnabled, &person.CreatedAt); err != nil {
			p.logger.Errorf("failed to scan person: %v", err)
			return nil, err
		}
		people = append(people, person)
	}
	return people, rows.Err()
}

func (p *PostgresStorage) DeletePerson(ctx context.Context, ownerID, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM people WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		p.logger.Errorf("failed to delete person: %v", err)
		return mapError(err, "person "+id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: person %s: %w", id, internal.ErrNotFound)
	}
	return nil
}

// --- LogRepository ---
func (p *PostgresStorage) AppendLog(ctx context.Context, log *internal.SleepLog) error {
	if err := internal.ValidateRecord(log); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO sleep_logs (id, owner_id, person_id, person_name, action, timestamp, session_id, notes) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.OwnerID, log.PersonID, log.PersonName, string(log.Action), log.Timestamp, log.SessionID, log.Notes)
	if err != nil {
		p.logger.Errorf("failed to insert sleep log: %v", err)
		return mapError(err, "sleep log "+log.ID)
	}
	return nil
}

func (p *PostgresStorage) ListLogs(ctx context.Context, ownerID string, filter LogFilter) ([]internal.SleepLog, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, owner_id, person_id, person_name, action, timestamp, session_id, notes FROM sleep_logs WHERE owner_id = $1`)
	args := []interface{}{ownerID}
	if filter.PersonID != "" {
		args = append(args, filter.PersonID)
		fmt.Fprintf(&sb, " AND person_id = $%d", len(args))
	}
	if !filter.Day.IsZero() {
		start, end := filter.dayBounds()
		args = append(args, start, end)
		fmt.Fprintf(&sb, " AND timestamp >= $%d AND timestamp < $%d", len(args)-1, len(args))
	}
	// seq breaks timestamp ties newest-appended first.
	sb.WriteString(" ORDER BY timestamp DESC, seq DESC")

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		p.logger.Errorf("failed to query sleep logs: %v", err)
		return nil, err
	}
	defer rows.Close()

	logs := []internal.SleepLog{}
	for rows.Next() {
		var l internal.SleepLog
		var action string
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.PersonID, &l.PersonName, &action, &l.Timestamp, &l.SessionID, &l.Notes); err != nil {
			p.logger.Errorf("failed to scan sleep log: %v", err)
			return nil, err
		}
		l.Action = internal.Action(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (p *PostgresStorage) ResetLogs(ctx context.Context, ownerID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sleep_logs WHERE owner_id = $1`, ownerID); err != nil {
		p.logger.Errorf("failed to reset sleep logs: %v", err)
		return mapError(err, "sleep logs of "+ownerID)
	}
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*PostgresStorage)(nil)
