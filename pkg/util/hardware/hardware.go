// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hardware

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/lk2023060901/zeus-compress-go/pkg/log"
)

var (
	cpuNum     int
	cpuNumOnce sync.Once
)

// GetCPUNum 返回主机的逻辑 CPU 核心数。
// 读取失败时回退为 runtime.NumCPU()。
func GetCPUNum() int {
	cpuNumOnce.Do(func() {
		count, err := cpu.Counts(true)
		if err != nil || count <= 0 {
			log.Warn("failed to get cpu count from gopsutil, fallback to runtime")
			count = runtime.NumCPU()
		}
		cpuNum = count
	})
	return cpuNum
}
