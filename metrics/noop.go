// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package metrics

import "time"

type NoopCollector struct{}

var _ Collector = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (*NoopCollector) CacheHit(string)                     {}
func (*NoopCollector) CacheMiss(string)                    {}
func (*NoopCollector) CacheEviction(string)                {}
func (*NoopCollector) CacheSize(string, int)               {}
func (*NoopCollector) BlockCommitted(int64, time.Duration) {}
func (*NoopCollector) BlockRolledBack(int64)               {}
func (*NoopCollector) HistoryHeights(int)                  {}
