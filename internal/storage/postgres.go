package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/schedule"
)

// PostgresStore backs the engine with Postgres. Conditional updates are
// plain UPDATEs guarded by the expected prior status; RowsAffected tells
// the caller whether it won the transition.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveUser(ctx context.Context, u *models.User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users(id, name, role, auto_approve, name_sharing, disabled, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, role=EXCLUDED.role, auto_approve=EXCLUDED.auto_approve,
			name_sharing=EXCLUDED.name_sharing, disabled=EXCLUDED.disabled`,
		u.ID, u.Name, string(u.Role), u.AutoApprove, string(u.NameSharing), u.Disabled, u.CreatedAt)
	return err
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, role, auto_approve, name_sharing, disabled, created_at
		FROM users WHERE id=$1`, id)
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.AutoApprove, &u.NameSharing, &u.Disabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) SaveRoutine(ctx context.Context, r *models.Routine) error {
	var retStart, retEnd sql.NullInt64
	if r.Return != nil {
		retStart = sql.NullInt64{Int64: int64(r.Return.StartMin), Valid: true}
		retEnd = sql.NullInt64{Int64: int64(r.Return.EndMin), Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO routines(id, user_id, dest_text, dest_lat, dest_lon, days,
			dep_start_min, dep_end_min, ret_start_min, ret_end_min, active, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			dest_text=EXCLUDED.dest_text, dest_lat=EXCLUDED.dest_lat, dest_lon=EXCLUDED.dest_lon,
			days=EXCLUDED.days, dep_start_min=EXCLUDED.dep_start_min, dep_end_min=EXCLUDED.dep_end_min,
			ret_start_min=EXCLUDED.ret_start_min, ret_end_min=EXCLUDED.ret_end_min, active=EXCLUDED.active`,
		r.ID, r.UserID, r.Destination.Text, coordLat(r.Destination.Coord), coordLon(r.Destination.Coord),
		int(r.Days), r.Departure.StartMin, r.Departure.EndMin, retStart, retEnd, r.Active, r.CreatedAt)
	return err
}

func (p *PostgresStore) GetRoutine(ctx context.Context, id string) (*models.Routine, error) {
	rows, err := p.queryRoutines(ctx, `WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (p *PostgresStore) GetActiveRoutines(ctx context.Context, destinationHint string) ([]models.Routine, error) {
	if destinationHint == "" {
		return p.queryRoutines(ctx, `WHERE active`)
	}
	return p.queryRoutines(ctx, `WHERE active AND dest_text ILIKE '%' || $1 || '%'`, destinationHint)
}

func (p *PostgresStore) queryRoutines(ctx context.Context, where string, args ...any) ([]models.Routine, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, dest_text, dest_lat, dest_lon, days,
		       dep_start_min, dep_end_min, ret_start_min, ret_end_min, active, created_at
		FROM routines `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Routine
	for rows.Next() {
		var r models.Routine
		var lat, lon sql.NullFloat64
		var days int
		var retStart, retEnd sql.NullInt64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Destination.Text, &lat, &lon, &days,
			&r.Departure.StartMin, &r.Departure.EndMin, &retStart, &retEnd, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Destination.Coord = nullCoord(lat, lon)
		r.Days = schedule.WeekdaySet(days)
		if retStart.Valid && retEnd.Valid {
			r.Return = &schedule.ClockWindow{StartMin: int(retStart.Int64), EndMin: int(retEnd.Int64)}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveRequest(ctx context.Context, r *models.RideRequest) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ride_requests(id, user_id, kind, origin_text, origin_lat, origin_lon,
			dest_text, dest_lat, dest_lon, when_start, when_end, when_at, when_flex,
			status, candidate_ids, approved_counterpart_id, created_at, expires_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			origin_text=EXCLUDED.origin_text, origin_lat=EXCLUDED.origin_lat, origin_lon=EXCLUDED.origin_lon,
			dest_text=EXCLUDED.dest_text, dest_lat=EXCLUDED.dest_lat, dest_lon=EXCLUDED.dest_lon,
			when_start=EXCLUDED.when_start, when_end=EXCLUDED.when_end,
			when_at=EXCLUDED.when_at, when_flex=EXCLUDED.when_flex,
			status=EXCLUDED.status, candidate_ids=EXCLUDED.candidate_ids,
			approved_counterpart_id=EXCLUDED.approved_counterpart_id, expires_at=EXCLUDED.expires_at`,
		r.ID, r.UserID, string(r.Kind),
		r.Origin.Text, coordLat(r.Origin.Coord), coordLon(r.Origin.Coord),
		r.Destination.Text, coordLat(r.Destination.Coord), coordLon(r.Destination.Coord),
		nullTime(r.When.Start), nullTime(r.When.End), nullTime(r.When.At), string(r.When.Flex),
		string(r.Status), pq.Array(r.CandidateIDs), nullString(r.ApprovedCounterpartID),
		r.CreatedAt, r.ExpiresAt)
	return err
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.RideRequest, error) {
	rows, err := p.queryRequests(ctx, `WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (p *PostgresStore) GetActiveRequests(ctx context.Context, kind models.RequestKind, destinationHint string) ([]models.RideRequest, error) {
	where := `WHERE kind=$1 AND status IN ('pending','matched') AND expires_at > now()`
	args := []any{string(kind)}
	if destinationHint != "" {
		where += ` AND dest_text ILIKE '%' || $2 || '%'`
		args = append(args, destinationHint)
	}
	return p.queryRequests(ctx, where, args...)
}

func (p *PostgresStore) queryRequests(ctx context.Context, where string, args ...any) ([]models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, kind, origin_text, origin_lat, origin_lon,
		       dest_text, dest_lat, dest_lon, when_start, when_end, when_at, when_flex,
		       status, candidate_ids, approved_counterpart_id, created_at, expires_at
		FROM ride_requests `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RideRequest
	for rows.Next() {
		var r models.RideRequest
		var oLat, oLon, dLat, dLon sql.NullFloat64
		var wStart, wEnd, wAt sql.NullTime
		var flex, approved sql.NullString
		var cands pq.StringArray
		if err := rows.Scan(&r.ID, &r.UserID, &r.Kind,
			&r.Origin.Text, &oLat, &oLon, &r.Destination.Text, &dLat, &dLon,
			&wStart, &wEnd, &wAt, &flex,
			&r.Status, &cands, &approved, &r.CreatedAt, &r.ExpiresAt); err != nil {
			return nil, err
		}
		r.Origin.Coord = nullCoord(oLat, oLon)
		r.Destination.Coord = nullCoord(dLat, dLon)
		if wStart.Valid {
			r.When.Start = wStart.Time
		}
		if wEnd.Valid {
			r.When.End = wEnd.Time
		}
		if wAt.Valid {
			r.When.At = wAt.Time
		}
		if flex.Valid {
			r.When.Flex = schedule.Flexibility(flex.String)
		}
		r.CandidateIDs = []string(cands)
		if approved.Valid {
			r.ApprovedCounterpartID = approved.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, from, to models.RequestStatus) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ride_requests SET status=$1 WHERE id=$2 AND status=$3`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (p *PostgresStore) ApproveRequest(ctx context.Context, id, counterpartID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE ride_requests SET status='approved', approved_counterpart_id=$1
		WHERE id=$2 AND status IN ('pending','matched')`,
		counterpartID, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (p *PostgresStore) AddRequestCandidates(ctx context.Context, id string, candidateIDs []string) error {
	// array union keeps the column duplicate-free under retries
	_, err := p.db.ExecContext(ctx, `
		UPDATE ride_requests
		SET candidate_ids = (
			SELECT array_agg(DISTINCT c) FROM unnest(candidate_ids || $1::text[]) AS c
		)
		WHERE id=$2`,
		pq.Array(candidateIDs), id)
	return err
}

func (p *PostgresStore) InsertMatchIfAbsent(ctx context.Context, m *models.Match) (*models.Match, bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO matches(id, request_id, counterpart_id, routine_id,
			origin_text, dest_text, score, status, notified_driver, notified_rider,
			created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (request_id, counterpart_id) DO NOTHING`,
		m.ID, m.RequestID, m.CounterpartID, nullString(m.RoutineID),
		m.Origin.Text, m.Destination.Text, m.Score, string(m.Status),
		m.NotifiedDriver, m.NotifiedRider, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		cp := *m
		return &cp, true, nil
	}
	existing, err := p.getMatchByPair(ctx, m.RequestID, m.CounterpartID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (p *PostgresStore) getMatchByPair(ctx context.Context, requestID, counterpartID string) (*models.Match, error) {
	rows, err := p.queryMatches(ctx, `WHERE request_id=$1 AND counterpart_id=$2`, requestID, counterpartID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (p *PostgresStore) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	rows, err := p.queryMatches(ctx, `WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (p *PostgresStore) GetMatchesByRequest(ctx context.Context, requestID string) ([]models.Match, error) {
	return p.queryMatches(ctx, `WHERE request_id=$1`, requestID)
}

func (p *PostgresStore) ListPendingMatches(ctx context.Context) ([]models.Match, error) {
	return p.queryMatches(ctx, `WHERE status='pending_approval'`)
}

func (p *PostgresStore) queryMatches(ctx context.Context, where string, args ...any) ([]models.Match, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, request_id, counterpart_id, routine_id, origin_text, dest_text,
		       score, status, notified_driver, notified_rider, created_at, updated_at
		FROM matches `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Match
	for rows.Next() {
		var m models.Match
		var routineID sql.NullString
		if err := rows.Scan(&m.ID, &m.RequestID, &m.CounterpartID, &routineID,
			&m.Origin.Text, &m.Destination.Text, &m.Score, &m.Status,
			&m.NotifiedDriver, &m.NotifiedRider, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if routineID.Valid {
			m.RoutineID = routineID.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateMatchStatus(ctx context.Context, id string, from, to models.MatchStatus) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE matches SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (p *PostgresStore) RejectSiblings(ctx context.Context, requestID, winnerMatchID string) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE matches SET status='rejected', updated_at=now()
		WHERE request_id=$1 AND id <> $2 AND status='pending_approval'`,
		requestID, winnerMatchID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *PostgresStore) MarkMatchNotified(ctx context.Context, id string, rider bool) error {
	col := "notified_driver"
	if rider {
		col = "notified_rider"
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE matches SET `+col+`=true, updated_at=now() WHERE id=$1`, id)
	return err
}

func (p *PostgresStore) AppendNotification(ctx context.Context, n *models.Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications(id, user_id, kind, request_id, match_id, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.UserID, n.Kind, nullString(n.RequestID), nullString(n.MatchID),
		string(n.Status), n.CreatedAt)
	return err
}

func (p *PostgresStore) SetNotificationStatus(ctx context.Context, id string, status models.DeliveryStatus) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE notifications SET status=$1 WHERE id=$2`, string(status), id)
	return err
}

func coordLat(c *models.Coord) sql.NullFloat64 {
	if c == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}
}

func coordLon(c *models.Coord) sql.NullFloat64 {
	if c == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lon, Valid: true}
}

func nullCoord(lat, lon sql.NullFloat64) *models.Coord {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &models.Coord{Lat: lat.Float64, Lon: lon.Float64}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
