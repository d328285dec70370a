package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campusflow/nodues-api/internal/models"
)

func TestScopeAllows(t *testing.T) {
	app := &models.Application{
		SchoolID: "school-eng",
		CourseID: strPtr("course-btech"),
		BranchID: strPtr("branch-cse"),
	}

	tests := []struct {
		name  string
		scope models.StaffScope
		app   *models.Application
		want  bool
	}{
		{
			name:  "empty scope admits everything",
			scope: models.StaffScope{},
			app:   app,
			want:  true,
		},
		{
			name:  "matching school",
			scope: models.StaffScope{SchoolIDs: []string{"school-eng"}},
			app:   app,
			want:  true,
		},
		{
			name:  "non-matching school",
			scope: models.StaffScope{SchoolIDs: []string{"school-law"}},
			app:   app,
			want:  false,
		},
		{
			name: "or within a dimension",
			scope: models.StaffScope{
				SchoolIDs: []string{"school-law", "school-eng"},
			},
			app:  app,
			want: true,
		},
		{
			name: "and across dimensions",
			scope: models.StaffScope{
				SchoolIDs: []string{"school-eng"},
				CourseIDs: []string{"course-mba"},
			},
			app:  app,
			want: false,
		},
		{
			name: "all dimensions matching",
			scope: models.StaffScope{
				SchoolIDs: []string{"school-eng"},
				CourseIDs: []string{"course-btech"},
				BranchIDs: []string{"branch-cse"},
			},
			app:  app,
			want: true,
		},
		{
			name:  "course restriction rejects application without a course",
			scope: models.StaffScope{CourseIDs: []string{"course-btech"}},
			app:   &models.Application{SchoolID: "school-eng"},
			want:  false,
		},
		{
			name:  "branch restriction rejects application without a branch",
			scope: models.StaffScope{BranchIDs: []string{"branch-cse"}},
			app:   &models.Application{SchoolID: "school-eng"},
			want:  false,
		},
		{
			name:  "nil application never allowed",
			scope: models.StaffScope{},
			app:   nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScopeAllows(tt.scope, tt.app))
		})
	}
}

func TestApplyScopeMatchesPredicate(t *testing.T) {
	scope := models.StaffScope{
		SchoolIDs: []string{"school-eng"},
		CourseIDs: []string{"course-btech"},
	}
	filter := models.ApplicationFilter{Status: []models.ApplicationStatus{models.ApplicationPending}}

	applyScope(scope, &filter)

	assert.Equal(t, scope.SchoolIDs, filter.SchoolIDs)
	assert.Equal(t, scope.CourseIDs, filter.CourseIDs)
	assert.Empty(t, filter.BranchIDs)
	assert.Equal(t, []models.ApplicationStatus{models.ApplicationPending}, filter.Status)
}
