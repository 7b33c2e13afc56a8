package main

import "github.com/nova-repository/newsrepo/internal/apperr"

// Exit codes: 0 success, 1 generic error, 2 usage error, 3 not-found,
// 4 conflict (duplicate), 5 upstream unavailable.
const (
	exitOK              = 0
	exitGeneric         = 1
	exitUsage           = 2
	exitNotFound        = 3
	exitConflict        = 4
	exitUpstreamUnavail = 5
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return exitUsage
	case apperr.NotFound:
		return exitNotFound
	case apperr.Conflict:
		return exitConflict
	case apperr.TransientUpstream, apperr.PermanentUpstream, apperr.ResourceExhausted:
		return exitUpstreamUnavail
	default:
		return exitGeneric
	}
}
