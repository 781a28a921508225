package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	historyDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "schematic_history_depth",
		Help: "Undo journal depth of the most recently edited session",
	})

	meterMeasurementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schematic_meter_measurements_total",
		Help: "Meter measurements by outcome",
	}, []string{"outcome"})
)
