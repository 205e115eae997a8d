package indicator

import (
	"fmt"
	"math"
	"time"

	"stock-signals/internal/domain"
)

// Default windows and periods for the daily indicator set.
const (
	DefaultRSIPeriod      = 14
	DefaultMACDFast       = 12
	DefaultMACDSlow       = 26
	DefaultMACDSignal     = 9
	DefaultBollingerSpan  = 20
	DefaultBollingerWidth = 2.0
)

// DefaultSMAWindows are the moving-average windows computed per bar.
var DefaultSMAWindows = []int{5, 20, 60}

// DefaultROCWindows are the rate-of-change (momentum) lookbacks.
var DefaultROCWindows = []int{5, 20}

// Config selects the indicator windows. Zero values fall back to defaults.
type Config struct {
	SMAWindows     []int
	RSIPeriod      int
	MACDFast       int
	MACDSlow       int
	MACDSignal     int
	BollingerSpan  int
	BollingerWidth float64
	ROCWindows     []int
}

func (c Config) withDefaults() Config {
	if len(c.SMAWindows) == 0 {
		c.SMAWindows = DefaultSMAWindows
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = DefaultRSIPeriod
	}
	if c.MACDFast <= 0 {
		c.MACDFast = DefaultMACDFast
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = DefaultMACDSlow
	}
	if c.MACDSignal <= 0 {
		c.MACDSignal = DefaultMACDSignal
	}
	if c.BollingerSpan <= 0 {
		c.BollingerSpan = DefaultBollingerSpan
	}
	if c.BollingerWidth <= 0 {
		c.BollingerWidth = DefaultBollingerWidth
	}
	if len(c.ROCWindows) == 0 {
		c.ROCWindows = DefaultROCWindows
	}
	return c
}

func (c Config) validate() error {
	for _, w := range c.SMAWindows {
		if w < 1 {
			return &domain.ConfigurationError{Field: "sma_windows", Reason: fmt.Sprintf("window %d must be >= 1", w)}
		}
	}
	if c.RSIPeriod < 1 {
		return &domain.ConfigurationError{Field: "rsi_period", Reason: "must be >= 1"}
	}
	if c.MACDFast >= c.MACDSlow {
		return &domain.ConfigurationError{Field: "macd", Reason: fmt.Sprintf("fast period %d must be shorter than slow %d", c.MACDFast, c.MACDSlow)}
	}
	for _, w := range c.ROCWindows {
		if w < 1 {
			return &domain.ConfigurationError{Field: "roc_windows", Reason: fmt.Sprintf("window %d must be >= 1", w)}
		}
	}
	return nil
}

// Frame holds one indicator column per name, aligned with Dates. Warm-up rows
// where an indicator is not yet defined hold math.NaN().
type Frame struct {
	Symbol  string
	Dates   []time.Time
	Closes  []float64
	Volumes []float64
	Columns map[string][]float64
	Order   []string
}

func (f *Frame) Len() int { return len(f.Dates) }

// Column returns the named series, or nil when absent.
func (f *Frame) Column(name string) []float64 { return f.Columns[name] }

// ColumnNames returns the column names in computation order, so callers can
// iterate or report the frame deterministically.
func (f *Frame) ColumnNames() []string {
	out := make([]string, len(f.Order))
	copy(out, f.Order)
	return out
}

// Last returns the final value of the named column and whether it is defined.
func (f *Frame) Last(name string) (float64, bool) {
	col := f.Columns[name]
	if len(col) == 0 {
		return 0, false
	}
	v := col[len(col)-1]
	return v, !math.IsNaN(v)
}

func (f *Frame) addColumn(name string, values []float64) {
	f.Columns[name] = values
	f.Order = append(f.Order, name)
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// minRows is the shortest series that defines every configured indicator on at
// least the final row.
func (e *Engine) minRows() int {
	need := e.cfg.RSIPeriod + 1
	for _, w := range e.cfg.SMAWindows {
		if w > need {
			need = w
		}
	}
	if e.cfg.BollingerSpan > need {
		need = e.cfg.BollingerSpan
	}
	for _, w := range e.cfg.ROCWindows {
		if w+1 > need {
			need = w + 1
		}
	}
	if e.cfg.MACDSlow+e.cfg.MACDSignal > need {
		need = e.cfg.MACDSlow + e.cfg.MACDSignal
	}
	return need
}

// Compute derives the full indicator frame for one symbol. Bars must be in
// ascending date order with finite closes.
func (e *Engine) Compute(symbol string, bars []domain.PriceBar) (*Frame, error) {
	if len(bars) == 0 {
		return nil, &domain.DataQualityError{Symbol: symbol, Reason: "empty price series"}
	}
	if need := e.minRows(); len(bars) < need {
		return nil, &domain.InsufficientDataError{Symbol: symbol, Op: "indicators", Needed: need, Got: len(bars)}
	}

	frame := &Frame{
		Symbol:  symbol,
		Dates:   make([]time.Time, len(bars)),
		Closes:  make([]float64, len(bars)),
		Volumes: make([]float64, len(bars)),
		Columns: make(map[string][]float64),
	}
	for i, bar := range bars {
		if math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
			return nil, &domain.DataQualityError{Symbol: symbol, Reason: fmt.Sprintf("missing close at row %d (%s)", i, bar.Date.Format("2006-01-02"))}
		}
		if i > 0 && !bar.Date.After(bars[i-1].Date) {
			return nil, &domain.DataQualityError{Symbol: symbol, Reason: fmt.Sprintf("dates not strictly ascending at row %d", i)}
		}
		frame.Dates[i] = bar.Date
		frame.Closes[i] = bar.Close
		frame.Volumes[i] = bar.Volume
	}

	for _, w := range e.cfg.SMAWindows {
		frame.addColumn(fmt.Sprintf("sma_%d", w), smaSeries(frame.Closes, w))
	}
	frame.addColumn(fmt.Sprintf("rsi_%d", e.cfg.RSIPeriod), rsiSeries(frame.Closes, e.cfg.RSIPeriod))

	macdLine, signalLine := macdSeries(frame.Closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	hist := make([]float64, len(macdLine))
	for i := range hist {
		hist[i] = macdLine[i] - signalLine[i]
	}
	frame.addColumn("macd", macdLine)
	frame.addColumn("macd_signal", signalLine)
	frame.addColumn("macd_hist", hist)

	upper, middle, lower, position := bollingerSeries(frame.Closes, e.cfg.BollingerSpan, e.cfg.BollingerWidth)
	frame.addColumn("bb_upper", upper)
	frame.addColumn("bb_middle", middle)
	frame.addColumn("bb_lower", lower)
	frame.addColumn("bb_position", position)

	for _, w := range e.cfg.ROCWindows {
		frame.addColumn(fmt.Sprintf("roc_%d", w), rocSeries(frame.Closes, w))
	}

	return frame, nil
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func smaSeries(closes []float64, window int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) < window {
		return out
	}
	var sum float64
	for i, v := range closes {
		sum += v
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

func rsiSeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) <= period {
		return out
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			// flat series carries no directional pressure
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func macdSeries(values []float64, fast, slow, signal int) ([]float64, []float64) {
	fastEMA := emaSeries(values, fast)
	slowEMA := emaSeries(values, slow)
	macdLine := make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := emaSeries(macdLine, signal)
	return macdLine, signalLine
}

func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func bollingerSeries(closes []float64, span int, width float64) (upper, middle, lower, position []float64) {
	n := len(closes)
	upper = nanSeries(n)
	middle = nanSeries(n)
	lower = nanSeries(n)
	position = nanSeries(n)

	for i := span - 1; i < n; i++ {
		mean, std := meanStd(closes[i-span+1 : i+1])
		middle[i] = mean
		upper[i] = mean + width*std
		lower[i] = mean - width*std
		if band := upper[i] - lower[i]; band > 0 {
			position[i] = (closes[i] - lower[i]) / band
		} else {
			// zero-width band, price sits on the middle line
			position[i] = 0.5
		}
	}
	return upper, middle, lower, position
}

func rocSeries(closes []float64, window int) []float64 {
	out := nanSeries(len(closes))
	for i := window; i < len(closes); i++ {
		base := closes[i-window]
		if base == 0 {
			continue
		}
		out[i] = (closes[i] - base) / base * 100
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	if len(values) == 1 {
		return mean, 0
	}
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}
