package config

import (
	"os"
	"path/filepath"
)

const configTemplate = `# Backtester configuration

[run]
# Symbol to backtest, e.g. "600000" or "300750"
symbol = ""
stock_name = ""

# Backtest date range (inclusive), YYYY-MM-DD. Leave empty to use the
# full range available in the store.
start_date = ""
end_date = ""

initial_capital = 100000.0

# Broker commission: rate applied to trade amount, with a per-order floor.
commission_rate = 0.0003
min_commission = 5.0

# Slippage in basis points, applied against the trade direction.
slippage_bps = 5.0

# Transfer/stamp tax rate, charged on sells only.
transfer_tax_rate = 0.001

lot_size = 100

# Annual risk-free rate used by Sharpe and Sortino.
risk_free_rate = 0.03

# Strategy to run: "ma_cross" or "rsi_reversal"
strategy = "ma_cross"

# Optional benchmark symbol for alpha/beta/information ratio.
benchmark = ""

# Liquidate any open position at the last bar instead of marking to market.
close_on_finish = false

[risk]
# Position sizing caps as fractions of equity.
max_position_pct = 1.0
max_total_exposure = 1.0

# Exit thresholds. 0 disables a rule.
stop_loss_pct = 0.0
stop_profit_pct = 0.0
max_drawdown_pct = 0.0

# Anchor the stop loss to the position high-water mark instead of cost.
trailing_stop = false

[optimization]
objective = "sharpe_ratio"
workers = 1

# Grid axes, enumerated in file order with the last axis varying fastest.
# [[optimization.params]]
# name = "fast_period"
# values = [3.0, 5.0, 8.0]
#
# [[optimization.params]]
# name = "slow_period"
# values = [10.0, 20.0, 30.0]

# Metric bounds that disqualify combinations.
# [[optimization.constraints]]
# metric = "max_drawdown"
# min = -0.30

[walkforward]
train_bars = 252
test_bars = 63
step_bars = 63
optimize_in_train = true
degradation_threshold = 0.30

[log]
level = "info"
console = true
file = true
`

// createTemplateConfig writes the default config file to the given
// directory, creating it if needed.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(configTemplate), 0o644)
}
