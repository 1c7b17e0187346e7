package github

import (
	"errors"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v72/github"
)

// statusOf digs the HTTP status out of a go-github or installation token error.
func statusOf(err error) int {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return http.StatusTooManyRequests
	}
	var apiErr *gh.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response.StatusCode
	}
	var tokenErr *ghinstallation.HTTPError
	if errors.As(err, &tokenErr) && tokenErr.Response != nil {
		return tokenErr.Response.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsAuth reports whether GitHub rejected the app or installation credentials.
func IsAuth(err error) bool {
	status := statusOf(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// IsRateLimited reports whether GitHub throttled the request.
func IsRateLimited(err error) bool {
	return statusOf(err) == http.StatusTooManyRequests
}
