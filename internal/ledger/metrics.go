package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	marksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance marks recorded, by status.",
	}, []string{"status"})

	markUpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_mark_upserts_total",
		Help: "Mark writes by outcome: created a new row or updated an existing one.",
	}, []string{"outcome"})
)
