// Package badge awards achievement badges and computes household analytics.
package badge

// Metric is a per-user counter that badge rules test against.
type Metric int

const (
	MetricStreak Metric = iota
	MetricCompleted
	MetricMessages
	MetricVotes
)

// Rule awards the badge of Type once Metric reaches Target.
type Rule struct {
	Type   string
	Metric Metric
	Target int
}

var Rules = []Rule{
	{"3_day_streak", MetricStreak, 3},
	{"7_day_streak", MetricStreak, 7},
	{"14_day_streak", MetricStreak, 14},
	{"30_day_streak", MetricStreak, 30},
	{"5_tasks_completed", MetricCompleted, 5},
	{"25_tasks_completed", MetricCompleted, 25},
	{"100_tasks_completed", MetricCompleted, 100},
	{"active_communicator", MetricMessages, 10},
	{"poll_participant", MetricVotes, 5},
}

func ruleFor(typ string) (Rule, bool) {
	for _, r := range Rules {
		if r.Type == typ {
			return r, true
		}
	}
	return Rule{}, false
}

// Metrics are the counters for one user.
type Metrics struct {
	Streak    int `json:"streak"`
	Completed int `json:"completed"`
	Messages  int `json:"messages"`
	Votes     int `json:"votes"`
}

func (m Metrics) Value(metric Metric) int {
	switch metric {
	case MetricStreak:
		return m.Streak
	case MetricCompleted:
		return m.Completed
	case MetricMessages:
		return m.Messages
	case MetricVotes:
		return m.Votes
	}
	return 0
}

// Earned returns the badge types whose rules the metrics satisfy.
func (m Metrics) Earned() []string {
	var out []string
	for _, r := range Rules {
		if m.Value(r.Metric) >= r.Target {
			out = append(out, r.Type)
		}
	}
	return out
}
