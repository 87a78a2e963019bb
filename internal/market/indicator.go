package market

import "github.com/markcheno/go-talib"

// 中文说明：
// 指标全部由回看窗口内的收盘序列计算，窗口终点即快照日期，天然无未来数据。

const (
	smaShortPeriod = 20
	smaLongPeriod  = 50
	rsiPeriod      = 14
	emaPeriod      = 12
)

// ComputeIndicators 对收盘序列（旧→新）计算常用技术指标。
// 数据不足以计算某个指标时省略对应键，由调用方自行兜底。
func ComputeIndicators(closes []float64) map[string]float64 {
	out := make(map[string]float64, 4)
	if len(closes) == 0 {
		return out
	}
	if v, ok := lastValid(talib.Sma(closes, min(smaShortPeriod, len(closes)))); ok {
		out["sma_20"] = v
	}
	if len(closes) >= smaLongPeriod {
		if v, ok := lastValid(talib.Sma(closes, smaLongPeriod)); ok {
			out["sma_50"] = v
		}
	}
	if len(closes) > rsiPeriod {
		if v, ok := lastValid(talib.Rsi(closes, rsiPeriod)); ok {
			out["rsi_14"] = v
		}
	}
	if len(closes) >= emaPeriod {
		if v, ok := lastValid(talib.Ema(closes, emaPeriod)); ok {
			out["ema_12"] = v
		}
	}
	return out
}

func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != 0 {
			return series[i], true
		}
	}
	if len(series) > 0 {
		return series[len(series)-1], true
	}
	return 0, false
}
