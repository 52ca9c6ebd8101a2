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

// Package idgen hands out process and operation identifiers.
package idgen

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/sonyflake"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type FlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func NewFlakeGenerator() (*FlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{StartTime: epoch})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &FlakeGenerator{sf: sf}, nil
}

// NextID returns a positive int64 that increases roughly in time order. If
// the generator is exhausted a random id is returned instead.
func (g *FlakeGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

var instanceID = sync.OnceValue(func() int64 {
	g, err := NewFlakeGenerator()
	if err != nil {
		return rand.Int64()
	}
	return g.NextID()
})

// InstanceID identifies this process in logs and telemetry. It is stable
// for the life of the process.
func InstanceID() int64 {
	return instanceID()
}

// NewOperationID returns a sortable id for one sync or CLI operation.
func NewOperationID() string {
	return ulid.Make().String()
}
