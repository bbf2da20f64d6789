// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralph_tasks_claimed_total",
			Help: "Total tasks claimed by this daemon, by repo",
		},
		[]string{"repo"},
	)

	tasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralph_tasks_completed_total",
			Help: "Total tasks completed, by repo and outcome",
		},
		[]string{"repo", "outcome"},
	)

	schedulerActiveSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ralph_scheduler_active_slots",
			Help: "Number of worker slots currently running a session, by repo",
		},
		[]string{"repo"},
	)

	schedulerTickTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ralph_scheduler_ticks_total",
			Help: "Total scheduler loop ticks",
		},
	)
)
