package valuation

import (
	"math"
	"sort"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

const (
	irrMaxIterations = 100
	irrTolerance     = 1e-7
	irrMinRate       = -0.999
	irrMaxRate       = 100.0
	daysPerYear      = 365.25
)

// XIRR returns the annualised internal rate of return of flows in frame f,
// closed out by terminal (the market value) on asAt. The rate is a fraction:
// 0.12 is 12%. Zero is returned when no rate can be computed.
func XIRR(flows []domain.CashFlow, f domain.Frame, terminal decimal.Decimal, asAt string) decimal.Decimal {
	if len(flows) == 0 {
		return decimal.Zero
	}

	all := make([]domain.CashFlow, 0, len(flows)+1)
	all = append(all, flows...)
	if !terminal.IsZero() {
		all = append(all, domain.CashFlow{Date: asAt, Trade: terminal, Portfolio: terminal, Base: terminal})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date < all[j].Date })

	start, err := domain.ParseDate(all[0].Date)
	if err != nil {
		return decimal.Zero
	}

	amounts := make([]float64, 0, len(all))
	years := make([]float64, 0, len(all))
	hasNeg, hasPos := false, false
	for _, flow := range all {
		date, err := domain.ParseDate(flow.Date)
		if err != nil {
			return decimal.Zero
		}
		amount := flow.Amount(f).InexactFloat64()
		if amount < 0 {
			hasNeg = true
		} else if amount > 0 {
			hasPos = true
		}
		amounts = append(amounts, amount)
		years = append(years, date.Sub(start).Hours()/24/daysPerYear)
	}
	if !hasNeg || !hasPos || floats.Max(years) == 0 {
		return decimal.Zero
	}

	rate := solveIRR(amounts, years)
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(rate).Round(8)
}

// solveIRR finds r with NPV(r) = 0 by Newton-Raphson, falling back to
// bisection when Newton does not converge
func solveIRR(amounts, years []float64) float64 {
	// d NPV / dr = sum(-y * a * (1+r)^(-y-1)); weighted holds -y*a
	weighted := make([]float64, len(amounts))
	floats.MulTo(weighted, years, amounts)
	floats.Scale(-1, weighted)

	discounts := make([]float64, len(amounts))
	rate := initialGuess(amounts)
	for i := 0; i < irrMaxIterations; i++ {
		base := 1 + rate
		for j, y := range years {
			discounts[j] = math.Pow(base, -y)
		}
		npv := floats.Dot(amounts, discounts)
		if math.Abs(npv) < irrTolerance {
			return rate
		}
		dnpv := floats.Dot(weighted, discounts) / base
		if dnpv == 0 {
			break
		}
		next := rate - npv/dnpv
		if next <= irrMinRate {
			next = irrMinRate
		}
		if next > irrMaxRate {
			next = irrMaxRate
		}
		if math.Abs(next-rate) < irrTolerance {
			return next
		}
		rate = next
	}
	return bisectIRR(amounts, years)
}

func initialGuess(amounts []float64) float64 {
	invested, received := 0.0, 0.0
	for _, a := range amounts {
		if a < 0 {
			invested -= a
		} else {
			received += a
		}
	}
	if invested > 0 {
		simple := received/invested - 1
		if simple > -0.9 && simple < 10 {
			return simple
		}
	}
	return 0.1
}

func bisectIRR(amounts, years []float64) float64 {
	discounts := make([]float64, len(amounts))
	npvAt := func(rate float64) float64 {
		for j, y := range years {
			discounts[j] = math.Pow(1+rate, -y)
		}
		return floats.Dot(amounts, discounts)
	}

	lo, hi := -0.99, 10.0
	npvLo, npvHi := npvAt(lo), npvAt(hi)
	if npvLo*npvHi > 0 {
		return math.NaN()
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		npvMid := npvAt(mid)
		if math.Abs(npvMid) < 1e-6 || (hi-lo)/2 < 1e-9 {
			return mid
		}
		if npvMid*npvLo < 0 {
			hi = mid
		} else {
			lo, npvLo = mid, npvMid
		}
	}
	return (lo + hi) / 2
}
