// Package validation checks entities against structural rules before they
// reach the store.
package validation

import (
	"regexp"
	"strings"

	"github.com/splax/servertracker/internal/domain"
)

// ipAddressExpr looks for four dot-separated groups of one to three digits
// anywhere in the value. It is unanchored and octet ranges are not checked,
// so "10.0.0.1/24" and 999.999.999.999 are accepted.
var ipAddressExpr = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// ServerValidator validates servers. The zero value is ready to use.
type ServerValidator struct{}

// Validate evaluates every rule and reports all violations in rule order.
// A nil server short-circuits with a single error.
func (ServerValidator) Validate(server *domain.Server) domain.ValidationResult {
	result := domain.ValidationResult{Valid: true}
	if server == nil {
		result.AddError("Server instance is null.")
		return result
	}

	if isBlank(server.Name) {
		result.AddError("Name is null, empty or whitespace.")
	}
	if isBlank(server.DomainName) {
		result.AddError("DomainName is null, empty, or whitespace.")
	}
	if isBlank(server.IPAddress) {
		result.AddError("IpAddress is null, empty, or whitespace.")
	} else if !ipAddressExpr.MatchString(server.IPAddress) {
		result.AddError("IpAddress is not a valid IP address.")
	}
	if isBlank(server.OperatingSystem) {
		result.AddError("OperatingSystem is null, empty, or whitespace.")
	}
	return result
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
