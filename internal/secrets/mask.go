// Package secrets redacts credentials before they reach the logs.
package secrets

import "net/url"

// Mask returns the first 4 characters of secret followed by "...". Secrets
// of 8 characters or fewer are fully hidden.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..."
}

// MaskURL redacts the userinfo and query values of a URL. Sentry DSNs carry
// their key as the username and collector endpoints sometimes carry tokens
// in the query, so both are hidden. Strings that do not parse as a URL with
// a host are hidden entirely.
func MaskURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(Mask(u.User.Username()), "***")
		} else {
			u.User = url.User(Mask(u.User.Username()))
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "***")
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
