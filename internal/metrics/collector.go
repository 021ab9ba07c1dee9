package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Collector exports agent and dispatch statistics to prometheus.
type Collector struct {
	agentRequestsTotal *prometheus.CounterVec
	agentResponseTime  *prometheus.HistogramVec
	tasksTotal         *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers its vectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		agentRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_requests_total",
				Help:      "Total number of task calls issued to agents",
			},
			[]string{"agent", "status"},
		),
		agentResponseTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_response_time_seconds",
				Help:      "Agent task call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"agent"},
		),
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of dispatched tasks",
			},
			[]string{"strategy", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Dispatch duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

func (c *Collector) ObserveOutcome(agentID string, elapsedMS float64, success bool) {
	c.agentRequestsTotal.WithLabelValues(agentID, statusLabel(success)).Inc()
	c.agentResponseTime.WithLabelValues(agentID).Observe(msToSeconds(elapsedMS))
}

func (c *Collector) ObserveTask(record domain.TaskRecord) {
	strategy := string(record.Strategy)
	c.tasksTotal.WithLabelValues(strategy, statusLabel(record.Result.Success)).Inc()
	c.taskDuration.WithLabelValues(strategy).Observe(msToSeconds(record.ProcessingTimeMS))
	c.logger.Debug("task observed",
		zap.String("task_id", record.ID),
		zap.String("strategy", strategy),
		zap.Bool("success", record.Result.Success),
	)
}

func statusLabel(success bool) string {
	if success {
		return statusSuccess
	}
	return statusFailure
}

func msToSeconds(ms float64) float64 {
	return ms * float64(time.Millisecond) / float64(time.Second)
}
