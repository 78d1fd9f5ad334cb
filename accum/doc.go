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

/*
Package accum provides lock-free accumulation of float64 probability mass.

EM workers score reads in parallel and fold the resulting weights into
per-transcript cells.  A mutex around each cell would serialize the hottest
loop of quantification, and plain "+=" loses updates, so every cell is updated
with a compare-and-swap retry loop over the float's bit pattern.  Two flavors
exist: IncLoop sums in linear space and IncLoopLog sums in log space with the
log-sum-exp identity from package logspace.

Accumulation and reads are separate phases.  The caller must make sure all
writers are done (for example by waiting on traverse.Each) before calling
Masses.Snapshot.
*/
package accum
