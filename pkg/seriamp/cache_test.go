// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seriamp

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// ============================================================
// FieldSet Tests
// ============================================================

func TestFieldSet_KeepsInsertionOrder(t *testing.T) {
	var f FieldSet
	f.Set("model_code", "R0178")
	f.Set("main_power", true)
	f.Set("main_volume", -40.5)
	f.Set("main_power", false)

	assert.Equal(t, []string{"model_code", "main_power", "main_volume"}, f.Keys())
	v, ok := f.Get("main_power")
	require.True(t, ok)
	assert.Equal(t, false, v)
}

func TestFieldSet_CloneIsIndependent(t *testing.T) {
	f := Fields("a", 1)
	clone := f.Clone()
	clone.Set("a", 2)
	clone.Set("b", 3)

	v, _ := f.Get("a")
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, f.Len())
}

func TestFieldSet_MarshalJSONOrdered(t *testing.T) {
	f := Fields("zone", "main", "mute", false, "volume", nil)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"zone":"main","mute":false,"volume":null}`, string(data))
}

func TestFieldSet_MarshalYAMLOrdered(t *testing.T) {
	f := Fields("zone", "main", "power", true, "input", "DVD")

	data, err := yaml.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, "zone: main\npower: true\ninput: DVD\n", string(data))
}

func TestFormatValue(t *testing.T) {
	db := -70.5
	assert.Equal(t, "-", FormatValue(nil))
	assert.Equal(t, "on", FormatValue(true))
	assert.Equal(t, "off", FormatValue(false))
	assert.Equal(t, "-70.5", FormatValue(db))
	assert.Equal(t, "-70.5", FormatValue(&db))
	assert.Equal(t, "DVD", FormatValue("DVD"))
}

// ============================================================
// ResponseCache Tests
// ============================================================

func TestResponseCache_StartsEmpty(t *testing.T) {
	c := NewResponseCache("model_code")
	assert.True(t, c.Empty())
	assert.Equal(t, 0, c.Snapshot().Len())
}

func TestResponseCache_LastWriteWins(t *testing.T) {
	c := NewResponseCache("model_code")
	c.Merge(Fields("model_code", "R0178", "main_volume", -40.0, "main_mute", false))
	replaced := c.Merge(Fields("main_volume", -70.0))

	assert.False(t, replaced)
	snap := c.Snapshot()
	v, _ := snap.Get("main_volume")
	assert.Equal(t, -70.0, v)
	_, ok := snap.Get("main_mute")
	assert.True(t, ok, "merge never drops fields")
}

func TestResponseCache_IdentityChangeReplaces(t *testing.T) {
	c := NewResponseCache("model_code")
	c.Merge(Fields("model_code", "R0178", "main_volume", -40.0))
	replaced := c.Merge(Fields("model_code", "R0190", "zone3_volume", -30.0))

	assert.True(t, replaced)
	snap := c.Snapshot()
	assert.Equal(t, []string{"model_code", "zone3_volume"}, snap.Keys())
}

func TestResponseCache_SameIdentityMerges(t *testing.T) {
	c := NewResponseCache("model_code")
	c.Merge(Fields("model_code", "R0178", "main_volume", -40.0))
	replaced := c.Merge(Fields("model_code", "R0178", "main_mute", true))

	assert.False(t, replaced)
	assert.Equal(t, 3, c.Snapshot().Len())
}

func TestResponseCache_SnapshotIsCopy(t *testing.T) {
	c := NewResponseCache("")
	c.Merge(Fields("a", 1))

	snap := c.Snapshot()
	snap.Set("a", 99)

	v, _ := c.Snapshot().Get("a")
	assert.Equal(t, 1, v)
}

func TestResponseCache_ConcurrentMerge(t *testing.T) {
	c := NewResponseCache("")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Merge(Fields("counter", i))
			_ = c.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Snapshot().Len())
}
