package service

import "github.com/campusflow/nodues-api/internal/models"

// ScopeAllows is the single authorization predicate for department actors.
// A scope with no restriction lists admits every application. Non-empty
// dimensions combine with AND; values inside one dimension combine with OR.
//
// Both the dashboard listing filter and single-record authorization go
// through this function so the two can never diverge.
func ScopeAllows(scope models.StaffScope, app *models.Application) bool {
	if app == nil {
		return false
	}
	if len(scope.SchoolIDs) > 0 && !contains(scope.SchoolIDs, app.SchoolID) {
		return false
	}
	if len(scope.CourseIDs) > 0 {
		if app.CourseID == nil || !contains(scope.CourseIDs, *app.CourseID) {
			return false
		}
	}
	if len(scope.BranchIDs) > 0 {
		if app.BranchID == nil || !contains(scope.BranchIDs, *app.BranchID) {
			return false
		}
	}
	return true
}

// applyScope narrows a listing filter with the same semantics as ScopeAllows,
// pushing the restriction into the database query.
func applyScope(scope models.StaffScope, filter *models.ApplicationFilter) {
	filter.SchoolIDs = scope.SchoolIDs
	filter.CourseIDs = scope.CourseIDs
	filter.BranchIDs = scope.BranchIDs
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
