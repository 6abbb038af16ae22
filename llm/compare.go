package llm

// Benchmarks scores models relative to each other. Every score is in [0,1]
// except CostEfficiency, which is tokens per dollar and 0 for free models.
type Benchmarks struct {
	LatencyScore     float64 `json:"latency_score"`
	ThroughputScore  float64 `json:"throughput_score"`
	ReliabilityScore float64 `json:"reliability_score"`
	CostEfficiency   float64 `json:"cost_efficiency"`
	SpeedScore       float64 `json:"speed_score"`
}

// CostAnalysis prices a model's recorded usage.
type CostAnalysis struct {
	TotalCost       float64 `json:"total_cost"`
	CostPer1KTokens float64 `json:"cost_per_1k_tokens"`
	CostPerRequest  float64 `json:"cost_per_request"`
}

// Comparison holds side-by-side metrics for a set of models.
type Comparison struct {
	Models       []string                   `json:"models"`
	Metrics      map[string]MetricsSnapshot `json:"metrics"`
	Benchmarks   map[string]Benchmarks      `json:"benchmarks"`
	CostAnalysis map[string]CostAnalysis    `json:"cost_analysis"`
}

// Compare builds a comparison of the named models. Every model must be
// registered.
func (r *Registry) Compare(models ...string) (*Comparison, error) {
	c := &Comparison{
		Models:       models,
		Metrics:      make(map[string]MetricsSnapshot, len(models)),
		Benchmarks:   make(map[string]Benchmarks, len(models)),
		CostAnalysis: make(map[string]CostAnalysis, len(models)),
	}
	var fastest, maxThroughput float64
	for _, model := range models {
		s, err := r.Metrics(model)
		if err != nil {
			return nil, err
		}
		c.Metrics[model] = s
		if s.AverageLatency > 0 && (fastest == 0 || s.AverageLatency < fastest) {
			fastest = s.AverageLatency
		}
		maxThroughput = max(maxThroughput, s.TokenThroughput)
	}

	for _, model := range models {
		s := c.Metrics[model]
		b := Benchmarks{ReliabilityScore: 1 - s.ErrorRate}
		if s.TotalRequests == 0 {
			b.ReliabilityScore = 0
		}
		if s.AverageLatency > 0 {
			b.LatencyScore = 1 / (1 + s.AverageLatency)
			b.SpeedScore = fastest / s.AverageLatency
		}
		if maxThroughput > 0 {
			b.ThroughputScore = s.TokenThroughput / maxThroughput
		}

		cost := s.TotalTokens.Cost
		ca := CostAnalysis{TotalCost: cost}
		if s.TotalTokens.TotalTokens > 0 {
			ca.CostPer1KTokens = cost / float64(s.TotalTokens.TotalTokens) * 1000
		}
		if s.TotalRequests > 0 {
			ca.CostPerRequest = cost / float64(s.TotalRequests)
		}
		if cost > 0 {
			b.CostEfficiency = float64(s.TotalTokens.TotalTokens) / cost
		}
		c.Benchmarks[model] = b
		c.CostAnalysis[model] = ca
	}
	return c, nil
}
