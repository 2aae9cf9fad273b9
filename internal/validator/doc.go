// Package validator parses and evaluates HTTP conditional-request
// header values (If-None-Match, If-Match) against a computed content
// identity, deciding whether a conditional read is fresh and whether a
// write precondition holds.
package validator
