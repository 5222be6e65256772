package models

import (
	"fmt"
	"time"
)

// StageMetrics summarises one stage of the pipeline.
type StageMetrics struct {
	StageID                StageID `json:"stage_id"`
	StageName              string  `json:"stage_name"`
	TotalLeads             int     `json:"total_leads"`
	AverageTimeInStageDays float64 `json:"average_time_in_stage_days"`
	ConversionRate         float64 `json:"conversion_rate"`
	LeadsThisWeek          int     `json:"leads_this_week"`
	LeadsThisMonth         int     `json:"leads_this_month"`
	TargetDurationDays     *int    `json:"target_duration_days,omitempty"`
	IsBottleneck           bool    `json:"is_bottleneck"`
}

// Period is a forecast horizon starting now.
type Period string

const (
	PeriodMonth   Period = "MONTH"
	PeriodQuarter Period = "QUARTER"
	PeriodYear    Period = "YEAR"
)

// ParsePeriod accepts MONTH, QUARTER or YEAR. An empty string means MONTH.
func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case "":
		return PeriodMonth, nil
	case PeriodMonth, PeriodQuarter, PeriodYear:
		return Period(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
}

// End returns the exclusive end of the period starting at start.
func (p Period) End(start time.Time) time.Time {
	switch p {
	case PeriodQuarter:
		return start.AddDate(0, 3, 0)
	case PeriodYear:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// StageForecast is the expected value contributed by one stage.
type StageForecast struct {
	StageID       StageID `json:"stage_id"`
	Count         int     `json:"count"`
	TotalValue    float64 `json:"total_value"`
	WeightedValue float64 `json:"weighted_value"`
}

// ForecastData is a plain expected-value projection of open deals.
type ForecastData struct {
	Period        Period                    `json:"period"`
	From          time.Time                 `json:"from"`
	To            time.Time                 `json:"to"`
	TotalValue    float64                   `json:"total_value"`
	WeightedValue float64                   `json:"weighted_value"`
	ByStage       map[StageID]StageForecast `json:"by_stage"`
	Unscheduled   StageForecast             `json:"unscheduled"`
	GeneratedAt   time.Time                 `json:"generated_at"`
}
