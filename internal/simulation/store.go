package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// 中文说明：
// ResultStore 用 Gorm + SQLite 持久化 run 与逐步记录。
// 记录本体整体以 JSON 存列，查询侧只按 run_id/seq 过滤，
// 结构演进不需要迁移列。

var ErrRunNotFound = errors.New("simulation run not found")

type runModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Status      string `gorm:"size:16;index"`
	Progress    int
	Message     string
	Config      datatypes.JSON
	Summary     datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (runModel) TableName() string { return "sim_runs" }

type recordModel struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	RunID   string `gorm:"size:64;index:idx_sim_records_run_seq,priority:1"`
	Seq     int    `gorm:"index:idx_sim_records_run_seq,priority:2"`
	Date    string `gorm:"size:10"`
	Ticker  string `gorm:"size:16"`
	Status  string `gorm:"size:16"`
	Payload datatypes.JSON
}

func (recordModel) TableName() string { return "sim_records" }

type ResultStore struct {
	db *gorm.DB
}

func NewResultStore(root string) (*ResultStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "simulations.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开 result store 失败: %w", err)
	}
	if err := db.AutoMigrate(&runModel{}, &recordModel{}); err != nil {
		return nil, fmt.Errorf("迁移 result store 失败: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 写入新任务。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	m := runModel{
		ID:        run.ID,
		Status:    run.Status,
		Progress:  run.Progress,
		Message:   run.Message,
		Config:    cfg,
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// UpdateRunStatus 更新状态/进度/消息。进度只向前推进。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status string, progress int, message string) error {
	updates := map[string]any{
		"status":     status,
		"message":    message,
		"progress":   gorm.Expr("MAX(progress, ?)", progress),
		"updated_at": time.Now(),
	}
	return s.db.WithContext(ctx).Model(&runModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CompleteRun 标记完成并存储代理汇总。
func (s *ResultStore) CompleteRun(ctx context.Context, id string, summaries []AgentSummary) error {
	payload, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":       RunStatusCompleted,
		"progress":     100,
		"message":      "完成",
		"summary":      datatypes.JSON(payload),
		"updated_at":   now,
		"completed_at": &now,
	}).Error
}

// AppendRecord 追加一条步骤记录（append-only）。
func (s *ResultStore) AppendRecord(ctx context.Context, runID string, seq int, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m := recordModel{
		RunID:   runID,
		Seq:     seq,
		Date:    rec.Date,
		Ticker:  rec.Ticker,
		Status:  rec.Status,
		Payload: payload,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// GetRun 读取单个 run。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	var m runModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return toRun(m)
}

// ListRuns 按创建时间倒序返回全部 run。
func (s *ResultStore) ListRuns(ctx context.Context) ([]Run, error) {
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := toRun(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// ListRecords 按 seq 升序返回 run 的全部记录。
func (s *ResultStore) ListRecords(ctx context.Context, runID string) ([]Record, error) {
	var models []recordModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(models))
	for _, m := range models {
		var rec Record
		if err := json.Unmarshal(m.Payload, &rec); err != nil {
			return nil, fmt.Errorf("记录 %d 反序列化失败: %w", m.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Summaries 读取完成后的代理汇总（未完成时为空）。
func (s *ResultStore) Summaries(ctx context.Context, runID string) ([]AgentSummary, error) {
	var m runModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(m.Summary) == 0 {
		return nil, nil
	}
	var out []AgentSummary
	if err := json.Unmarshal(m.Summary, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRun 删除 run 及其记录（前端 reset 用）。
func (s *ResultStore) DeleteRun(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&recordModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&runModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRunNotFound
		}
		return nil
	})
}

func toRun(m runModel) (Run, error) {
	run := Run{
		ID:        m.ID,
		Status:    m.Status,
		Progress:  m.Progress,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.CompletedAt != nil {
		run.CompletedAt = *m.CompletedAt
	}
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &run.Config); err != nil {
			return Run{}, fmt.Errorf("run %s config 反序列化失败: %w", m.ID, err)
		}
	}
	return run, nil
}
