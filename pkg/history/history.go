// Package history 用 SQLite 记录战斗会话、机制观测和提醒，用于回看计时偏差
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/susalert/susalert/pkg/alert"
)

// 固定宽度，按字符串排序即按时间排序
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store 历史记录
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 记录只由一个 goroutine 写入
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  ended_at TEXT,
  end_reason TEXT,
  demo INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS observations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  mechanic_id TEXT NOT NULL,
  cycle INTEGER NOT NULL,
  idx INTEGER NOT NULL,
  predicted_at TEXT NOT NULL,
  observed_at TEXT NOT NULL,
  delta_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS observations_mechanic ON observations (mechanic_id);
CREATE TABLE IF NOT EXISTS alerts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  mechanic_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  cycle INTEGER NOT NULL,
  idx INTEGER NOT NULL,
  fire_at TEXT NOT NULL,
  due_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("创建历史表失败: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SessionStarted 记录会话开始
func (s *Store) SessionStarted(ctx context.Context, id string, at time.Time, demo bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, demo) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, formatTime(at), demo)
	if err != nil {
		return fmt.Errorf("记录会话开始失败: %w", err)
	}
	return nil
}

// SessionEnded 记录会话结束
func (s *Store) SessionEnded(ctx context.Context, id string, at time.Time, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?`,
		formatTime(at), reason, id)
	if err != nil {
		return fmt.Errorf("记录会话结束失败: %w", err)
	}
	return nil
}

// Observation 一次机制确认
type Observation struct {
	SessionID  string
	MechanicID string
	Cycle      int
	Index      int
	Predicted  time.Time
	Observed   time.Time
}

// Delta 观测时间减预测时间
func (o Observation) Delta() time.Duration {
	return o.Observed.Sub(o.Predicted)
}

// RecordObservation 记录机制确认
func (s *Store) RecordObservation(ctx context.Context, o Observation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (session_id, mechanic_id, cycle, idx, predicted_at, observed_at, delta_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.SessionID, o.MechanicID, o.Cycle, o.Index,
		formatTime(o.Predicted), formatTime(o.Observed), o.Delta().Milliseconds())
	if err != nil {
		return fmt.Errorf("记录观测失败: %w", err)
	}
	return nil
}

// RecordAlert 记录提醒
func (s *Store) RecordAlert(ctx context.Context, ev alert.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (session_id, mechanic_id, kind, cycle, idx, fire_at, due_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.MechanicID, string(ev.Kind), ev.Cycle, ev.Index,
		formatTime(ev.FireAt), formatTime(ev.DueAt))
	if err != nil {
		return fmt.Errorf("记录提醒失败: %w", err)
	}
	return nil
}

// SessionSummary 会话概要
type SessionSummary struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
	EndReason    string    `json:"end_reason,omitempty"`
	Demo         bool      `json:"demo"`
	Alerts       int       `json:"alerts"`
	Observations int       `json:"observations"`
}

// Duration 会话时长，未结束时为 0
func (s SessionSummary) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Recent 最近的会话，按开始时间倒序
func (s *Store) Recent(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, sessionQuery+`
ORDER BY s.started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		sum, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Drift 某个机制的观测偏差统计
type Drift struct {
	MechanicID string        `json:"mechanic_id"`
	Count      int           `json:"count"`
	Mean       time.Duration `json:"mean"`
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
}

// DriftSummary 按机制统计观测偏差
func (s *Store) DriftSummary(ctx context.Context) ([]Drift, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT mechanic_id, COUNT(*), AVG(delta_ms), MIN(delta_ms), MAX(delta_ms)
FROM observations
GROUP BY mechanic_id
ORDER BY mechanic_id`)
	if err != nil {
		return nil, fmt.Errorf("统计偏差失败: %w", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var (
			d      Drift
			mean   float64
			lo, hi int64
		)
		if err := rows.Scan(&d.MechanicID, &d.Count, &mean, &lo, &hi); err != nil {
			return nil, fmt.Errorf("读取偏差失败: %w", err)
		}
		d.Mean = time.Duration(mean * float64(time.Millisecond))
		d.Min = time.Duration(lo) * time.Millisecond
		d.Max = time.Duration(hi) * time.Millisecond
		out = append(out, d)
	}
	return out, rows.Err()
}

// ErrNotFound 会话不存在
var ErrNotFound = errors.New("会话不存在")

// Session 查询单个会话
func (s *Store) Session(ctx context.Context, id string) (SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, sessionQuery+` WHERE s.id = ?`, id)
	sum, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionSummary{}, ErrNotFound
	}
	return sum, err
}

const sessionQuery = `
SELECT s.id, s.started_at, s.ended_at, s.end_reason, s.demo,
  (SELECT COUNT(*) FROM alerts a WHERE a.session_id = s.id),
  (SELECT COUNT(*) FROM observations o WHERE o.session_id = s.id)
FROM sessions s`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (SessionSummary, error) {
	var (
		sum            SessionSummary
		started, ended sql.NullString
		reason         sql.NullString
	)
	if err := sc.Scan(&sum.ID, &started, &ended, &reason, &sum.Demo, &sum.Alerts, &sum.Observations); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sum, err
		}
		return sum, fmt.Errorf("读取会话失败: %w", err)
	}
	sum.StartedAt = parseTime(started)
	sum.EndedAt = parseTime(ended)
	sum.EndReason = reason.String
	return sum, nil
}
