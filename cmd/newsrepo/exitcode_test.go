package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

func TestExitCodeForMapsKnownKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{apperr.New(apperr.Validation, "bad input"), exitUsage},
		{apperr.New(apperr.NotFound, "missing"), exitNotFound},
		{apperr.New(apperr.Conflict, "dup"), exitConflict},
		{apperr.New(apperr.TransientUpstream, "down"), exitUpstreamUnavail},
		{apperr.New(apperr.Internal, "oops"), exitGeneric},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, exitCodeFor(tc.err))
	}
}

func TestParseDateRejectsMalformedInput(t *testing.T) {
	_, err := parseDate("not-a-date")
	require.Error(t, err)
	require.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestParseDateAllowsEmptyString(t *testing.T) {
	d, err := parseDate("")
	require.NoError(t, err)
	require.True(t, d.IsZero())
}

func TestParseFiltersSplitsKeyValuePairs(t *testing.T) {
	got, err := parseFilters([]string{"status=reviewed", "kind=article"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"status": "reviewed", "kind": "article"}, got)
}

func TestParseFiltersRejectsMissingEquals(t *testing.T) {
	_, err := parseFilters([]string{"status"})
	require.Error(t, err)
}
