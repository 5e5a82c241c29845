package aggregator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBackendName(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr string
	}{
		{name: "simple", backend: "github"},
		{name: "dashes and digits", backend: "search-2"},
		{name: "exactly max length", backend: strings.Repeat("a", MaxBackendNameLength)},
		{name: "empty", backend: "", wantErr: "name is empty"},
		{name: "contains separator", backend: "git.hub", wantErr: "separator"},
		{name: "too long", backend: strings.Repeat("a", MaxBackendNameLength+1), wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBackendName(tt.backend)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidNameError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.backend, invalid.Name)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPrefix, p)

	for _, s := range []string{"prefix", "first-wins", "error"} {
		p, err := ParseConflictPolicy(s)
		require.NoError(t, err)
		assert.Equal(t, ConflictPolicy(s), p)
	}

	_, err = ParseConflictPolicy("last-wins")
	assert.Error(t, err)
}

func TestPrefixedName(t *testing.T) {
	assert.Equal(t, "github.search", PrefixedName("github", "search"))
	assert.Equal(t, "docs.file:///readme", PrefixedName("docs", "file:///readme"))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		holder      string
		policy      ConflictPolicy
		wantOutcome Outcome
		wantPublic  string
		wantErr     bool
	}{
		{name: "free name under prefix", policy: PolicyPrefix, wantOutcome: OutcomeAccepted, wantPublic: "search"},
		{name: "free name under first-wins", policy: PolicyFirstWins, wantOutcome: OutcomeAccepted, wantPublic: "search"},
		{name: "free name under error", policy: PolicyError, wantOutcome: OutcomeAccepted, wantPublic: "search"},
		{name: "conflict under prefix", holder: "a", policy: PolicyPrefix, wantOutcome: OutcomeAccepted, wantPublic: "b.search"},
		{name: "conflict under first-wins", holder: "a", policy: PolicyFirstWins, wantOutcome: OutcomeRejected},
		{name: "conflict under error", holder: "a", policy: PolicyError, wantOutcome: OutcomeError, wantErr: true},
		{name: "duplicate within backend", holder: "b", policy: PolicyPrefix, wantOutcome: OutcomeRejected},
		{name: "duplicate within backend under error", holder: "b", policy: PolicyError, wantOutcome: OutcomeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Resolve(tt.holder, "b", "search", tt.policy)
			assert.Equal(t, tt.wantOutcome, d.Outcome)
			if tt.wantOutcome == OutcomeAccepted {
				assert.Equal(t, tt.wantPublic, d.PublicName)
			}
			if tt.wantErr {
				var conflict *ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.Equal(t, "a", conflict.Holder)
				assert.Equal(t, "b", conflict.Candidate)
				assert.Equal(t, "search", conflict.Name)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolve_IsPure(t *testing.T) {
	first, _ := Resolve("a", "b", "search", PolicyPrefix)
	second, _ := Resolve("a", "b", "search", PolicyPrefix)
	assert.Equal(t, first, second)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "accepted", OutcomeAccepted.String())
	assert.Equal(t, "rejected", OutcomeRejected.String())
	assert.Equal(t, "error", OutcomeError.String())
}
