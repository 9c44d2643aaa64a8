package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gedvault_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gedvault_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 权限指标
var (
	// PermissionGrantsTotal 授权操作总数
	PermissionGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gedvault_permission_grants_total",
			Help: "权限授予操作总数",
		},
		[]string{"kind"},
	)

	// PermissionRevokesTotal 撤销操作总数
	PermissionRevokesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gedvault_permission_revokes_total",
			Help: "权限撤销操作总数",
		},
	)

	// PermissionChecksTotal 权限评估总数
	PermissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gedvault_permission_checks_total",
			Help: "权限评估总数",
		},
		[]string{"kind", "result"},
	)

	// ExpiredGrantsSweptTotal 清理的过期授权总数
	ExpiredGrantsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gedvault_expired_grants_swept_total",
			Help: "定期清理删除的过期授权总数",
		},
	)
)

// 审批指标
var (
	// ApprovalPendingGauge 进行中审批实例数
	ApprovalPendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gedvault_approvals_pending",
			Help: "当前进行中的审批实例数",
		},
	)

	// ApprovalDecisionsTotal 审批决策总数
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gedvault_approval_decisions_total",
			Help: "审批动作总数",
		},
		[]string{"action"},
	)

	// ApprovalCompletedTotal 审批终态总数
	ApprovalCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gedvault_approvals_completed_total",
			Help: "到达终态的审批实例总数",
		},
		[]string{"status"},
	)
)
