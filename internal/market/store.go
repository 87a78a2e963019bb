package market

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"tradearena/internal/logger"

	_ "modernc.org/sqlite"
)

// Store 管理 candles / sentiment_posts 两张表，行情与舆情 CSV 均导入到这里。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("market store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "market.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureMarketSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureMarketSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			ticker TEXT NOT NULL,
			date TEXT NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (ticker, date)
		)`,
		`CREATE TABLE IF NOT EXISTS sentiment_posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			date TEXT NOT NULL,
			source TEXT NOT NULL,
			sentiment REAL NOT NULL,
			text TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sentiment_ticker_date ON sentiment_posts (ticker, date)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("初始化 market schema 失败: %w", err)
		}
	}
	return nil
}

// UpsertCandles 批量写入行情（同键覆盖）。
func (s *Store) UpsertCandles(ctx context.Context, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO candles (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET open=excluded.open, high=excluded.high,
		low=excluded.low, close=excluded.close, volume=excluded.volume`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, strings.ToUpper(c.Ticker), c.Date, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// InsertPosts 批量写入舆情样本。
func (s *Store) InsertPosts(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sentiment_posts (ticker, date, source, sentiment, text) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, p := range posts {
		if _, err := stmt.ExecContext(ctx, strings.ToUpper(p.Ticker), p.Date, strings.ToLower(p.Source), p.Sentiment, p.Text); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RangeCandles 返回 [start, end] 闭区间内的行情，按日期升序。
func (s *Store) RangeCandles(ctx context.Context, ticker, start, end string) ([]Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, date, open, high, low, close, volume
		FROM candles WHERE ticker = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		strings.ToUpper(ticker), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Ticker, &c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RangePosts 返回 [start, end] 闭区间内的舆情样本。
func (s *Store) RangePosts(ctx context.Context, ticker, start, end string) ([]Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, date, source, sentiment, COALESCE(text, '')
		FROM sentiment_posts WHERE ticker = ? AND date >= ? AND date <= ? ORDER BY date ASC, id ASC`,
		strings.ToUpper(ticker), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.Ticker, &p.Date, &p.Source, &p.Sentiment, &p.Text); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ImportCandlesCSV 导入行情 CSV（表头: ticker,date,open,high,low,close,volume）。
func (s *Store) ImportCandlesCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	idx, err := headerIndex(header, "ticker", "date", "open", "high", "low", "close", "volume")
	if err != nil {
		return 0, err
	}
	var batch []Candle
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		c := Candle{
			Ticker: rec[idx["ticker"]],
			Date:   rec[idx["date"]],
		}
		if c.Open, err = strconv.ParseFloat(rec[idx["open"]], 64); err != nil {
			continue
		}
		if c.High, err = strconv.ParseFloat(rec[idx["high"]], 64); err != nil {
			continue
		}
		if c.Low, err = strconv.ParseFloat(rec[idx["low"]], 64); err != nil {
			continue
		}
		if c.Close, err = strconv.ParseFloat(rec[idx["close"]], 64); err != nil {
			continue
		}
		if c.Volume, err = strconv.ParseInt(rec[idx["volume"]], 10, 64); err != nil {
			c.Volume = 0
		}
		batch = append(batch, c)
	}
	if err := s.UpsertCandles(ctx, batch); err != nil {
		return 0, err
	}
	logger.Infof("[market] 导入行情 %s：%d 条", filepath.Base(path), len(batch))
	return len(batch), nil
}

// ImportSentimentCSV 导入舆情 CSV（表头: ticker,date,source,sentiment,text）。
func (s *Store) ImportSentimentCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	idx, err := headerIndex(header, "ticker", "date", "source", "sentiment")
	if err != nil {
		return 0, err
	}
	textIdx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "text") || strings.EqualFold(strings.TrimSpace(h), "title") {
			textIdx = i
			break
		}
	}
	var batch []Post
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		p := Post{
			Ticker: rec[idx["ticker"]],
			Date:   rec[idx["date"]],
			Source: rec[idx["source"]],
		}
		if p.Sentiment, err = strconv.ParseFloat(rec[idx["sentiment"]], 64); err != nil {
			continue
		}
		if textIdx >= 0 && textIdx < len(rec) {
			p.Text = rec[textIdx]
		}
		batch = append(batch, p)
	}
	if err := s.InsertPosts(ctx, batch); err != nil {
		return 0, err
	}
	logger.Infof("[market] 导入舆情 %s：%d 条", filepath.Base(path), len(batch))
	return len(batch), nil
}

func headerIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("CSV 缺少必需列: %s", name)
		}
	}
	return idx, nil
}
