package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dbErrorsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chronomodel_db_errors_total",
		Help: "Number of failed database statements by command type",
	},
	[]string{"type"},
)

var dbRetriesCount = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "chronomodel_db_transaction_retries_total",
		Help: "Number of transaction retries due to serialization failures",
	},
)
