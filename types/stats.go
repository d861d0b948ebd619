package types

// InstanceStats aggregates a canonical instance set for reporting.
type InstanceStats struct {
	Total           int            `json:"total"`
	Running         int            `json:"running"`
	Stopped         int            `json:"stopped"`
	Retired         int            `json:"retired"`
	MonthlyCostUSD  float64        `json:"monthly_cost_usd"`
	ByProvider      map[string]int `json:"by_provider"`
	ByRegion        map[string]int `json:"by_region"`
	CostIsEstimated bool           `json:"cost_is_estimated"`
}

// ComputeStats summarizes instances. Retired instances count toward Total
// and Retired but not toward running cost.
func ComputeStats(instances []Instance) InstanceStats {
	stats := InstanceStats{
		ByProvider: make(map[string]int),
		ByRegion:   make(map[string]int),
	}
	for i := range instances {
		inst := &instances[i]
		stats.Total++
		stats.ByProvider[inst.ProviderID]++
		switch inst.Status {
		case StatusRunning:
			stats.Running++
		case StatusStopped:
			stats.Stopped++
		case StatusRetired:
			stats.Retired++
		}
		if inst.Status != StatusRetired {
			stats.ByRegion[inst.Region]++
			stats.MonthlyCostUSD += inst.MonthlyCostUSD
			if inst.CostEstimated {
				stats.CostIsEstimated = true
			}
		}
	}
	return stats
}
