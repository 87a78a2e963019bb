package loader

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tradearena/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AgentProfile 描述一个参赛交易代理：推理风格仅作为提示词框架传入，
// 不影响硬约束（仓位上限等仍由 trading 配置统一控制）。
type AgentProfile struct {
	Name        string  `mapstructure:"-"`
	Style       string  `mapstructure:"style"`
	Model       string  `mapstructure:"model"`
	InitialCash float64 `mapstructure:"initial_cash"`
	Enabled     *bool   `mapstructure:"enabled"`
}

func (p AgentProfile) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// FileConfig 是 agents.yaml 的完整结构。
type FileConfig struct {
	Agents map[string]AgentProfile `mapstructure:"agents"`
}

// Snapshot 对外暴露的只读快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles []AgentProfile
}

// ChangeListener 在 profiles 重载时触发。
type ChangeListener func(Snapshot)

// ProfileLoader 读取 agents.yaml 并监听文件变更热加载。
type ProfileLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func NewProfileLoader(path string) (*ProfileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("agent profile loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read agent profiles failed: %w", err)
	}
	l := &ProfileLoader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("agent profiles reload failed: %v", err)
			return
		}
		l.notifyListeners()
	})
	v.WatchConfig()
	return l, nil
}

// Snapshot 返回当前代理配置快照。
func (l *ProfileLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := l.snapshot
	out.Profiles = append([]AgentProfile(nil), l.snapshot.Profiles...)
	return out
}

// OnChange 注册重载回调。
func (l *ProfileLoader) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *ProfileLoader) reload() error {
	var fc FileConfig
	if err := l.v.Unmarshal(&fc); err != nil {
		return fmt.Errorf("parse agent profiles failed: %w", err)
	}
	profiles := make([]AgentProfile, 0, len(fc.Agents))
	for name, p := range fc.Agents {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p.Name = name
		p.Style = NormalizeStyle(p.Style)
		if !p.IsEnabled() {
			continue
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		return fmt.Errorf("agents.yaml 未定义任何启用的代理")
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	l.mu.Unlock()
	logger.Infof("[profiles] 加载代理配置：%d 个（version=%d）", len(profiles), l.snapshotVersion())
	return nil
}

func (l *ProfileLoader) snapshotVersion() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.Version
}

func (l *ProfileLoader) notifyListeners() {
	l.mu.RLock()
	listeners := append([]ChangeListener(nil), l.listeners...)
	snap := l.snapshot
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// NormalizeStyle 归一化推理风格别名。允许值：balanced/aggressive/conservative。
func NormalizeStyle(style string) string {
	switch strings.ToLower(strings.TrimSpace(style)) {
	case "aggressive", "risky", "bold":
		return "aggressive"
	case "conservative", "safe", "cautious":
		return "conservative"
	default:
		return "balanced"
	}
}
