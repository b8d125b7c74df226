package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_log (
	id          TEXT PRIMARY KEY,
	template    TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	recipient   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	objects     INTEGER NOT NULL DEFAULT 0,
	misses      INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_render_log_created ON render_log(created_at);
`

// Status 是一次渲染的结果。
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// ErrNoEntry 表示记录不存在。
var ErrNoEntry = errors.New("渲染记录不存在")

// Entry 是一次渲染的记录。
type Entry struct {
	ID        string    `json:"id"`
	Template  string    `json:"template"`
	Output    string    `json:"output,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Objects   int       `json:"objects"`
	Misses    int       `json:"misses"`
	CreatedAt time.Time `json:"createdAt"`
}

// Log 在 SQLite 中记录每次渲染。
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// OpenLog 打开（必要时创建）记录库。
func OpenLog(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开记录库失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 失败: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化记录表失败: %w", err)
	}
	return &Log{db: db, now: time.Now}, nil
}

// Close 关闭数据库连接。
func (l *Log) Close() error {
	return l.db.Close()
}

// Record 写入一条记录；ID 与 CreatedAt 为空时自动填充。
func (l *Log) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	if e.Status == "" {
		e.Status = StatusOK
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO render_log (id, template, output, recipient, status, error, objects, misses, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Template, e.Output, e.Recipient, string(e.Status), e.Error, e.Objects, e.Misses,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("写入渲染记录失败: %w", err)
	}
	return e, nil
}

// Get 按 id 读取记录。
func (l *Log) Get(ctx context.Context, id string) (Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, template, output, recipient, status, error, objects, misses, created_at
		 FROM render_log WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoEntry, id)
	}
	return e, err
}

// Recent 按时间倒序返回最近的 limit 条记录。
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, template, output, recipient, status, error, objects, misses, created_at
		 FROM render_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询渲染记录失败: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		status  string
		created string
	)
	if err := s.Scan(&e.ID, &e.Template, &e.Output, &e.Recipient, &status, &e.Error, &e.Objects, &e.Misses, &created); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Entry{}, fmt.Errorf("解析记录时间 %q 失败: %w", created, err)
	}
	e.CreatedAt = t
	return e, nil
}
