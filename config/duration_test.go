package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"thirty days", "30d", 30 * 24 * time.Hour, false},
		{"fourteen days", "14d", 14 * 24 * time.Hour, false},
		{"zero days", "0d", 0, false},
		{"plain seconds", "90s", 90 * time.Second, false},
		{"compound", "1h30m", 90 * time.Minute, false},
		{"negative", "-5s", -5 * time.Second, false},
		{"fractional days rejected", "1.5d", 0, true},
		{"bare number rejected", "5", 0, true},
		{"empty rejected", "", 0, true},
		{"garbage rejected", "soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	type doc struct {
		Wait Duration `json:"wait"`
	}

	t.Run("string with day suffix", func(t *testing.T) {
		var d doc
		require.NoError(t, json.Unmarshal([]byte(`{"wait":"14d"}`), &d))
		assert.Equal(t, 14*24*time.Hour, d.Wait.Std())
	})

	t.Run("plain duration string", func(t *testing.T) {
		var d doc
		require.NoError(t, json.Unmarshal([]byte(`{"wait":"2s"}`), &d))
		assert.Equal(t, 2*time.Second, d.Wait.Std())
	})

	t.Run("integer nanoseconds", func(t *testing.T) {
		var d doc
		require.NoError(t, json.Unmarshal([]byte(`{"wait":1000000000}`), &d))
		assert.Equal(t, time.Second, d.Wait.Std())
	})

	t.Run("invalid string", func(t *testing.T) {
		var d doc
		assert.Error(t, json.Unmarshal([]byte(`{"wait":"whenever"}`), &d))
	})

	t.Run("round trip", func(t *testing.T) {
		out, err := json.Marshal(doc{Wait: Duration(90 * time.Second)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"wait":"1m30s"}`, string(out))

		var back doc
		require.NoError(t, json.Unmarshal(out, &back))
		assert.Equal(t, 90*time.Second, back.Wait.Std())
	})
}

func TestDuration_YAML(t *testing.T) {
	type doc struct {
		Wait Duration `yaml:"wait"`
	}

	t.Run("day suffix", func(t *testing.T) {
		var d doc
		require.NoError(t, yaml.Unmarshal([]byte("wait: 30d"), &d))
		assert.Equal(t, 30*24*time.Hour, d.Wait.Std())
	})

	t.Run("plain duration", func(t *testing.T) {
		var d doc
		require.NoError(t, yaml.Unmarshal([]byte("wait: 5s"), &d))
		assert.Equal(t, 5*time.Second, d.Wait.Std())
	})

	t.Run("integer nanoseconds", func(t *testing.T) {
		var d doc
		require.NoError(t, yaml.Unmarshal([]byte("wait: 1000000000"), &d))
		assert.Equal(t, time.Second, d.Wait.Std())
	})

	t.Run("non-scalar rejected", func(t *testing.T) {
		var d doc
		assert.Error(t, yaml.Unmarshal([]byte("wait: [1, 2]"), &d))
	})

	t.Run("round trip", func(t *testing.T) {
		out, err := yaml.Marshal(doc{Wait: Duration(2 * time.Hour)})
		require.NoError(t, err)

		var back doc
		require.NoError(t, yaml.Unmarshal(out, &back))
		assert.Equal(t, 2*time.Hour, back.Wait.Std())
	})
}
