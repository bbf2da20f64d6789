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

package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var throttleStateGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "ralph_throttle_state",
		Help: "Current throttle state: 0=ok, 1=soft, 2=hard",
	},
)

// RecordState publishes the current throttle state as a metric, for the
// scheduler to call once per tick after evaluating GetThrottleDecision.
func RecordState(state State) {
	switch state {
	case StateOK:
		throttleStateGauge.Set(0)
	case StateSoft:
		throttleStateGauge.Set(1)
	case StateHard:
		throttleStateGauge.Set(2)
	}
}
