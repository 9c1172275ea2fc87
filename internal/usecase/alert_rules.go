package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ChainSignal/internal/domain/models"
)

// Input names a shared data source read once per rule pass.
type Input string

const (
	InputLargeTx  Input = "large_transactions"
	InputSnapshot Input = "market_snapshot"
	InputMempool  Input = "mempool"
	InputHolders  Input = "top_holders"
)

// RuleInputs is the data shared by all rules within one pass. Errs holds the
// inputs that could not be fetched.
type RuleInputs struct {
	Now      time.Time
	LargeTx  []models.LargeTransaction
	Snapshot models.MarketSnapshot
	Mempool  models.MempoolSnapshot
	Holders  []models.Holder
	Errs     map[Input]error
}

// Has reports whether in was fetched successfully.
func (ri *RuleInputs) Has(in Input) bool { return ri.Errs[in] == nil }

// Rule is an independent detector. Needs lists the inputs without which the rule
// cannot run; each instance carries its own state across passes.
type Rule interface {
	Name() string
	Category() models.AlertCategory
	Needs() []Input
	Evaluate(ctx context.Context, in *RuleInputs) ([]models.Alert, error)
}

// AddressLookup resolves the last activity of an address.
type AddressLookup interface {
	GetAddressLastActivity(ctx context.Context, address string) (models.AddressActivity, error)
}

func newAlert(now time.Time, sev models.Severity, cat models.AlertCategory, title, msg string, data map[string]interface{}) models.Alert {
	return models.Alert{
		ID:        uuid.NewString(),
		Timestamp: now,
		Severity:  sev,
		Category:  cat,
		Title:     title,
		Message:   msg,
		Data:      data,
	}
}

func shortAddr(a string) string {
	if len(a) <= 14 {
		return a
	}
	return a[:8] + "..." + a[len(a)-6:]
}

// --- dormant activation ---

const (
	dormantCriticalAge    = 365 * 24 * time.Hour
	dormantCriticalAmount = 50.0
	dormantWarningAge     = 180 * 24 * time.Hour
	dormantWarningAmount  = 10.0
	dormantMaxLookups     = 10
)

// DormantActivationRule flags long-idle addresses that move large amounts.
// Each address is looked up at most once per process lifetime.
type DormantActivationRule struct {
	lookup     AddressLookup
	maxLookups int

	mu      sync.Mutex
	checked map[string]struct{}
}

func NewDormantActivationRule(lookup AddressLookup) *DormantActivationRule {
	return &DormantActivationRule{lookup: lookup, maxLookups: dormantMaxLookups, checked: map[string]struct{}{}}
}

func (r *DormantActivationRule) Name() string { return "dormant_activation" }
func (r *DormantActivationRule) Category() models.AlertCategory {
	return models.CategoryDormantActivation
}
func (r *DormantActivationRule) Needs() []Input { return []Input{InputLargeTx} }

// Checked reports how many addresses are in the dedup set.
func (r *DormantActivationRule) Checked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.checked)
}

func (r *DormantActivationRule) Evaluate(ctx context.Context, in *RuleInputs) ([]models.Alert, error) {
	txs := append([]models.LargeTransaction(nil), in.LargeTx...)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Amount > txs[j].Amount })

	var candidates []models.LargeTransaction
	picked := map[string]bool{}
	r.mu.Lock()
	for _, tx := range txs {
		if tx.From == "" || picked[tx.From] {
			continue
		}
		if _, seen := r.checked[tx.From]; seen {
			continue
		}
		picked[tx.From] = true
		candidates = append(candidates, tx)
		if len(candidates) == r.maxLookups {
			break
		}
	}
	r.mu.Unlock()
	if len(candidates) == 0 {
		return nil, nil
	}

	type result struct {
		tx  models.LargeTransaction
		act models.AddressActivity
		err error
	}
	results := make([]result, len(candidates))
	var wg sync.WaitGroup
	for i, tx := range candidates {
		wg.Add(1)
		go func(i int, tx models.LargeTransaction) {
			defer wg.Done()
			act, err := r.lookup.GetAddressLastActivity(ctx, tx.From)
			results[i] = result{tx: tx, act: act, err: err}
		}(i, tx)
	}
	wg.Wait()

	var alerts []models.Alert
	var firstErr error
	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		r.mu.Lock()
		r.checked[res.tx.From] = struct{}{}
		r.mu.Unlock()
		if res.act.LastActiveAt.IsZero() {
			continue
		}

		age := in.Now.Sub(res.act.LastActiveAt)
		days := int(age.Hours() / 24)
		var sev models.Severity
		switch {
		case age > dormantCriticalAge && res.tx.Amount >= dormantCriticalAmount:
			sev = models.SeverityCritical
		case age > dormantWarningAge && res.tx.Amount >= dormantWarningAmount:
			sev = models.SeverityWarning
		default:
			continue
		}
		alerts = append(alerts, newAlert(in.Now, sev, r.Category(),
			"Dormant address activated",
			fmt.Sprintf("%s moved %.2f BTC after %d days of inactivity", shortAddr(res.tx.From), res.tx.Amount, days),
			map[string]interface{}{
				"address":      res.tx.From,
				"amount":       res.tx.Amount,
				"dormant_days": days,
				"tx_hash":      res.tx.Hash,
			},
		))
	}
	if failed == len(results) {
		return nil, fmt.Errorf("%w: address lookups failed: %v", models.ErrDataUnavailable, firstErr)
	}
	return alerts, nil
}

// --- long trap ---

const (
	longTrapWarningRatio  = 2.0
	longTrapWarningChange = 2.0
	longTrapInfoRatio     = 3.0
	// ZeroWithdrawalRatio stands in for deposits/withdrawals when nothing was
	// withdrawn but something was deposited.
	ZeroWithdrawalRatio = 10.0
)

// FlowRatio is exchange deposits over withdrawals within the sample.
func FlowRatio(txs []models.LargeTransaction) (ratio, deposits, withdrawals float64) {
	for _, tx := range txs {
		switch tx.Flow {
		case models.FlowExchangeDeposit:
			deposits += tx.Amount
		case models.FlowExchangeWithdrawal:
			withdrawals += tx.Amount
		}
	}
	switch {
	case withdrawals > 0:
		ratio = deposits / withdrawals
	case deposits > 0:
		ratio = ZeroWithdrawalRatio
	}
	return ratio, deposits, withdrawals
}

// LongTrapRule flags heavy exchange deposits while price is rallying.
type LongTrapRule struct{}

func NewLongTrapRule() *LongTrapRule { return &LongTrapRule{} }

func (r *LongTrapRule) Name() string                   { return "long_trap_signal" }
func (r *LongTrapRule) Category() models.AlertCategory { return models.CategoryLongTrapSignal }

// Needs omits the snapshot: without it only the price-independent branch runs.
func (r *LongTrapRule) Needs() []Input { return []Input{InputLargeTx} }

func (r *LongTrapRule) Evaluate(_ context.Context, in *RuleInputs) ([]models.Alert, error) {
	ratio, dep, wd := FlowRatio(in.LargeTx)
	data := map[string]interface{}{"ratio": ratio, "deposits": dep, "withdrawals": wd}

	if in.Has(InputSnapshot) && ratio > longTrapWarningRatio && in.Snapshot.ChangePercent24h > longTrapWarningChange {
		data["price_change_24h"] = in.Snapshot.ChangePercent24h
		return []models.Alert{newAlert(in.Now, models.SeverityWarning, r.Category(),
			"Possible long trap",
			fmt.Sprintf("Exchange deposits outpace withdrawals %.1fx while price is up %.2f%% in 24h", ratio, in.Snapshot.ChangePercent24h),
			data,
		)}, nil
	}
	if ratio > longTrapInfoRatio {
		return []models.Alert{newAlert(in.Now, models.SeverityInfo, r.Category(),
			"Heavy exchange deposits",
			fmt.Sprintf("Exchange deposits outpace withdrawals %.1fx (%.2f vs %.2f BTC)", ratio, dep, wd),
			data,
		)}, nil
	}
	return nil, nil
}

// --- derivatives hedging ---

const (
	feeWindowSize      = 12
	feeMinSamples      = 3
	feeSpikeMultiplier = 2.0
	hedgeDepositAmount = 50.0
)

// DerivativesHedgingRule flags a fee spike coinciding with a large exchange
// deposit. The fee window lives on the rule instance.
type DerivativesHedgingRule struct {
	fees []float64
}

func NewDerivativesHedgingRule() *DerivativesHedgingRule { return &DerivativesHedgingRule{} }

func (r *DerivativesHedgingRule) Name() string { return "derivatives_hedging" }
func (r *DerivativesHedgingRule) Category() models.AlertCategory {
	return models.CategoryDerivativesHedging
}
func (r *DerivativesHedgingRule) Needs() []Input { return []Input{InputMempool, InputLargeTx} }

// Window returns a copy of the fee samples, oldest first.
func (r *DerivativesHedgingRule) Window() []float64 { return append([]float64(nil), r.fees...) }

func (r *DerivativesHedgingRule) Evaluate(_ context.Context, in *RuleInputs) ([]models.Alert, error) {
	fee := in.Mempool.FastestFee
	r.fees = append(r.fees, fee)
	if len(r.fees) > feeWindowSize {
		r.fees = r.fees[len(r.fees)-feeWindowSize:]
	}
	if len(r.fees) < feeMinSamples {
		return nil, nil
	}

	prior := r.fees[:len(r.fees)-1]
	sum := 0.0
	for _, f := range prior {
		sum += f
	}
	mean := sum / float64(len(prior))
	if mean <= 0 || fee <= feeSpikeMultiplier*mean {
		return nil, nil
	}

	var biggest *models.LargeTransaction
	for i := range in.LargeTx {
		tx := &in.LargeTx[i]
		if tx.Flow == models.FlowExchangeDeposit && tx.Amount > hedgeDepositAmount {
			if biggest == nil || tx.Amount > biggest.Amount {
				biggest = tx
			}
		}
	}
	if biggest == nil {
		return nil, nil
	}

	return []models.Alert{newAlert(in.Now, models.SeverityWarning, r.Category(),
		"Possible derivatives hedging",
		fmt.Sprintf("Fee spike to %.0f sat/vB (%.1fx average) with %.2f BTC deposited to %s", fee, fee/mean, biggest.Amount, exchangeName(biggest.Exchange)),
		map[string]interface{}{
			"fastest_fee": fee,
			"mean_fee":    mean,
			"deposit":     biggest.Amount,
			"exchange":    biggest.Exchange,
			"tx_hash":     biggest.Hash,
		},
	)}, nil
}

func exchangeName(e string) string {
	if e == "" {
		return "an exchange"
	}
	return e
}

// --- new whale ---

// NewWhaleRule diffs the top-holder set against the previous pass. The first
// successful pass only records the baseline.
type NewWhaleRule struct {
	prev     map[string]struct{}
	baseline bool
}

func NewNewWhaleRule() *NewWhaleRule { return &NewWhaleRule{} }

func (r *NewWhaleRule) Name() string                   { return "new_whale_top100" }
func (r *NewWhaleRule) Category() models.AlertCategory { return models.CategoryNewWhaleTop100 }
func (r *NewWhaleRule) Needs() []Input                 { return []Input{InputHolders} }

func (r *NewWhaleRule) Evaluate(_ context.Context, in *RuleInputs) ([]models.Alert, error) {
	current := make(map[string]struct{}, len(in.Holders))
	for _, h := range in.Holders {
		current[h.Address] = struct{}{}
	}
	if !r.baseline {
		r.prev, r.baseline = current, true
		return nil, nil
	}

	var alerts []models.Alert
	for _, h := range in.Holders {
		if _, ok := r.prev[h.Address]; ok {
			continue
		}
		alerts = append(alerts, newAlert(in.Now, models.SeverityCritical, r.Category(),
			"New whale in top 100",
			fmt.Sprintf("%s entered the top holders at rank #%d with %.2f BTC", shortAddr(h.Address), h.Rank, h.Balance),
			map[string]interface{}{
				"address": h.Address,
				"rank":    h.Rank,
				"balance": h.Balance,
				"label":   h.Label,
			},
		))
	}
	r.prev = current
	return alerts, nil
}

// --- large exchange flows ---

const (
	largeFlowAmount = 100.0
	largeFlowMemory = 1000
)

// LargeFlowRule reports each large exchange deposit (inflow) or withdrawal
// (outflow) once.
type LargeFlowRule struct {
	flow     models.FlowKind
	category models.AlertCategory
	severity models.Severity
	min      float64
	seen     map[string]struct{}
	order    []string
}

func NewLargeInflowRule() *LargeFlowRule {
	return newLargeFlowRule(models.FlowExchangeDeposit, models.CategoryLargeInflow, models.SeverityWarning)
}

func NewLargeOutflowRule() *LargeFlowRule {
	return newLargeFlowRule(models.FlowExchangeWithdrawal, models.CategoryLargeOutflow, models.SeverityInfo)
}

func newLargeFlowRule(flow models.FlowKind, cat models.AlertCategory, sev models.Severity) *LargeFlowRule {
	return &LargeFlowRule{flow: flow, category: cat, severity: sev, min: largeFlowAmount, seen: map[string]struct{}{}}
}

func (r *LargeFlowRule) Name() string                   { return string(r.category) }
func (r *LargeFlowRule) Category() models.AlertCategory { return r.category }
func (r *LargeFlowRule) Needs() []Input                 { return []Input{InputLargeTx} }

func (r *LargeFlowRule) Evaluate(_ context.Context, in *RuleInputs) ([]models.Alert, error) {
	var alerts []models.Alert
	for _, tx := range in.LargeTx {
		if tx.Flow != r.flow || tx.Amount < r.min || tx.Hash == "" {
			continue
		}
		if _, ok := r.seen[tx.Hash]; ok {
			continue
		}
		r.remember(tx.Hash)

		title, verb := "Large exchange inflow", "deposited to"
		if r.flow == models.FlowExchangeWithdrawal {
			title, verb = "Large exchange outflow", "withdrawn from"
		}
		alerts = append(alerts, newAlert(in.Now, r.severity, r.category, title,
			fmt.Sprintf("%.2f BTC %s %s", tx.Amount, verb, exchangeName(tx.Exchange)),
			map[string]interface{}{
				"amount":   tx.Amount,
				"exchange": tx.Exchange,
				"tx_hash":  tx.Hash,
			},
		))
	}
	return alerts, nil
}

func (r *LargeFlowRule) remember(hash string) {
	r.seen[hash] = struct{}{}
	r.order = append(r.order, hash)
	if len(r.order) > largeFlowMemory {
		delete(r.seen, r.order[0])
		r.order = r.order[1:]
	}
}

// DefaultRules builds the standard rule set in display order.
func DefaultRules(lookup AddressLookup) []Rule {
	return []Rule{
		NewDormantActivationRule(lookup),
		NewLongTrapRule(),
		NewDerivativesHedgingRule(),
		NewNewWhaleRule(),
		NewLargeInflowRule(),
		NewLargeOutflowRule(),
	}
}
