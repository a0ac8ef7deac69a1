package models

import "time"

// EnergyMetric is one aggregated consumption sample from the vendor's
// historical energy endpoint. SumWh is the consumption of the period that
// starts at PeriodStart, in watt-hours.
type EnergyMetric struct {
	PeriodStart time.Time `json:"startDateOfMetric"`
	SumWh       float64   `json:"sum"`
}

// EnergyStatistic is one imported row of the cumulative energy history
// kept locally. CumulativeWh continues the running sum of previously
// imported rows for the same statistic id.
type EnergyStatistic struct {
	StatisticID  string    `json:"statistic_id"` // "<device_id>_energy"
	PeriodStart  time.Time `json:"period_start"`
	PeriodWh     float64   `json:"period_wh"`
	CumulativeWh float64   `json:"cumulative_wh"`
}
