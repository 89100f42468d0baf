package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cleancity_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cleancity_registrations_total",
		Help: "Registration attempts by outcome.",
	}, []string{"outcome"})
)
