// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logspace holds the probability-in-log-space conventions shared by
// the quantification packages. Every component that compares against zero
// probability must use LogZero from here.
package logspace

import "math"

var (
	// LogZero is log(0).
	LogZero = math.Inf(-1)
	// LogOne is log(1).
	LogOne = 0.0
)

// IsZero reports whether x represents probability 0.
func IsZero(x float64) bool {
	return math.IsInf(x, -1)
}

// Add returns log(exp(a) + exp(b)) without leaving log space.
func Add(a, b float64) float64 {
	if IsZero(a) {
		return b
	}
	if IsZero(b) {
		return a
	}
	if a > b {
		return a + math.Log1p(math.Exp(b-a))
	}
	return b + math.Log1p(math.Exp(a-b))
}

// SumExp folds Add over xs. It returns LogZero for an empty slice.
func SumExp(xs []float64) float64 {
	if len(xs) == 0 {
		return LogZero
	}
	max := LogZero
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if IsZero(max) {
		return LogZero
	}
	if math.IsInf(max, 1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}
