// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics, while the
// domain codes name growth-loop outcomes that status alone cannot convey
// (an exhausted invite quota, a missing reward policy).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "quota_exceeded",
//	  "message": "daily invite limit reached"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeQuotaExceeded    = "quota_exceeded"
	ErrCodePolicyNotFound   = "policy_not_found"
	ErrCodeRewardMismatch   = "reward_type_mismatch"
	ErrCodeRewardDenied     = "reward_denied"
	ErrCodeIssueFailed      = "issue_failed"
	ErrCodeGrantFailed      = "grant_failed"
	ErrCodeTrackFailed      = "track_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeConversionFailed = "conversion_failed"
)
