package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"deriv-trading-bot-go/internal/ledger"
	"deriv-trading-bot-go/internal/models"
)

// Metrics 存储一次运行结束后计算出的所有性能指标
type Metrics struct {
	InitialBalance   float64
	FinalBalance     float64
	TotalProfit      float64
	ProfitPercentage float64
	TotalTrades      int
	PendingTrades    int
	WinningTrades    int
	LosingTrades     int
	WinRate          float64
	AvgProfitLoss    float64
	StartTime        time.Time
	EndTime          time.Time
}

// CalculateMetrics 根据初始余额与交易记录计算性能指标
func CalculateMetrics(initialBalance float64, records []models.TradeRecord) *Metrics {
	m := &Metrics{InitialBalance: initialBalance}

	var totalWin, totalLoss float64
	for i := range records {
		rec := &records[i]
		if !rec.Settled() {
			m.PendingTrades++
			continue
		}
		m.TotalTrades++
		if rec.Status == models.TradeWon {
			m.WinningTrades++
			totalWin += rec.ProfitLoss
		} else {
			m.LosingTrades++
			totalLoss += rec.ProfitLoss
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 && m.LosingTrades > 0 {
		avgWin := totalWin / float64(m.WinningTrades)
		avgLoss := -totalLoss / float64(m.LosingTrades)
		if avgLoss != 0 {
			m.AvgProfitLoss = avgWin / avgLoss
		}
	}

	// 余额由初始余额和已结算交易推导, 与会话账本使用同一套规则
	m.FinalBalance = ledger.CurrentBalance(initialBalance, records)
	m.TotalProfit = m.FinalBalance - m.InitialBalance
	if m.InitialBalance != 0 {
		m.ProfitPercentage = (m.TotalProfit / m.InitialBalance) * 100
	}
	return m
}

// WriteReport 将交易明细与性能汇总渲染到 w
func WriteReport(w io.Writer, currency string, initialBalance float64, records []models.TradeRecord) {
	m := CalculateMetrics(initialBalance, records)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("交易明细")
	t.AppendHeader(table.Row{"#", "合约ID", "引用", "品种", "方向", "投注额", "盈亏", "状态", "开仓时间"})
	for i := range records {
		rec := &records[i]
		t.AppendRow(table.Row{
			i + 1,
			rec.ID,
			rec.Ref,
			rec.Asset,
			rec.Direction,
			fmt.Sprintf("%.2f", rec.Stake),
			fmt.Sprintf("%+.2f", rec.ProfitLoss),
			rec.Status,
			rec.EntryTime.Format("2006-01-02 15:04:05"),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()

	s := table.NewWriter()
	s.SetOutputMirror(w)
	s.SetTitle("运行汇总")
	s.AppendRows([]table.Row{
		{"初始余额", fmt.Sprintf("%.2f %s", m.InitialBalance, currency)},
		{"最终余额", fmt.Sprintf("%.2f %s", m.FinalBalance, currency)},
		{"净盈亏", fmt.Sprintf("%+.2f %s (%.2f%%)", m.TotalProfit, currency, m.ProfitPercentage)},
		{"已结算交易", m.TotalTrades},
		{"未结算交易", m.PendingTrades},
		{"盈利次数", m.WinningTrades},
		{"亏损次数", m.LosingTrades},
		{"胜率", fmt.Sprintf("%.2f%%", m.WinRate)},
		{"平均盈亏比", fmt.Sprintf("%.2f", m.AvgProfitLoss)},
	})
	s.Render()
}
