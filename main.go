// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	gomaxecs "github.com/rdforte/gomaxecs/maxprocs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/pagekeeper/cmd"
)

const (
	memLimitRatio    = 0.9
	defaultGCPercent = 100
)

func main() {
	time.Local = time.UTC
	tuneRuntime()
	cmd.Execute()
}

// tuneRuntime fits GOMAXPROCS and GOMEMLIMIT to the container quota.
func tuneRuntime() {
	logf := func(msg string, args ...any) {
		slog.Info(fmt.Sprintf(msg, args...))
	}

	var err error
	if gomaxecs.IsECS() {
		_, err = gomaxecs.Set(gomaxecs.WithLogger(logf))
	} else {
		_, err = maxprocs.Set(maxprocs.Logger(logf))
	}
	if err != nil {
		slog.Warn("Failed to set GOMAXPROCS", slog.Any("error", err))
	}

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(memLimitRatio),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		slog.Warn("Failed to set GOMEMLIMIT", slog.Any("error", err))
	} else if limit > 0 {
		slog.Debug("Set GOMEMLIMIT", slog.Int64("bytes", limit))
	}

	if _, ok := os.LookupEnv("GOGC"); !ok {
		debug.SetGCPercent(defaultGCPercent)
	}
}
