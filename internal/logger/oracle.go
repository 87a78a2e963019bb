package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 中文说明：
// Oracle 调用日志：与业务日志分开写，完整保留提示词与模型输出，
// 便于离线排查解析失败/幻觉问题。默认关闭，由配置开启。

var (
	oracleMu          sync.Mutex
	oracleLog         *log.Logger
	oracleDumpPayload bool
)

func SetOracleWriter(w io.Writer) {
	oracleMu.Lock()
	defer oracleMu.Unlock()
	if w == nil {
		oracleLog = nil
		return
	}
	oracleLog = log.New(w, "", log.LstdFlags)
}

func EnableOraclePayloadDump(enabled bool) {
	oracleMu.Lock()
	oracleDumpPayload = enabled
	oracleMu.Unlock()
}

func oraclePayloadEnabled() bool {
	oracleMu.Lock()
	defer oracleMu.Unlock()
	return oracleDumpPayload
}

type oracleSection struct {
	Title string
	Body  string
}

func logOracle(kind, provider, purpose string, sections []oracleSection) {
	oracleMu.Lock()
	l := oracleLog
	oracleMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[ORACLE]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if provider != "" {
		b.WriteString("[")
		b.WriteString(provider)
		b.WriteString("]")
	}
	if purpose != "" {
		b.WriteString("[")
		b.WriteString(purpose)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("---- ")
		b.WriteString(t)
		b.WriteString(" ----\n")
		b.WriteString(strings.TrimSpace(sec.Body))
		b.WriteString("\n")
	}
	l.Print(b.String())
}

// LogOracleRequest 记录一次模型请求（提示词仅在 dump 开启时落盘）。
func LogOracleRequest(provider, purpose, system, user string) {
	if !oraclePayloadEnabled() {
		logOracle("REQ", provider, purpose, nil)
		return
	}
	logOracle("REQ", provider, purpose, []oracleSection{
		{Title: "SYSTEM", Body: system},
		{Title: "USER", Body: user},
	})
}

// LogOracleResponse 记录模型原始输出或错误。
func LogOracleResponse(provider, purpose, raw string, err error) {
	if err != nil {
		logOracle("ERR", provider, purpose, []oracleSection{{Title: "ERROR", Body: err.Error()}})
		return
	}
	if !oraclePayloadEnabled() {
		logOracle("RESP", provider, purpose, nil)
		return
	}
	logOracle("RESP", provider, purpose, []oracleSection{{Title: "RAW", Body: raw}})
}
