package gateway

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts gateway decisions and login outcomes.
type Metrics struct {
	decisions *prometheus.CounterVec
	logins    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitegate",
			Name:      "gateway_decisions_total",
			Help:      "Requests handled by the security gateway, by route class and outcome.",
		}, []string{"class", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitegate",
			Name:      "login_attempts_total",
			Help:      "Credential submissions by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.logins)
	}
	return m
}

func (m *Metrics) observe(class Class, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(class), outcome).Inc()
}

// ObserveLogin records a credential submission.
func (m *Metrics) ObserveLogin(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.logins.WithLabelValues(result).Inc()
}
