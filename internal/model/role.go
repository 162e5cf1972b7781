package model

// Role identifies what a caller may do in an engagement.
type Role string

const (
	RoleAdvisor   Role = "advisor"
	RoleFirmAdmin Role = "firm_admin"
	RoleClient    Role = "client"
	RoleSuperUser Role = "super_admin"
)

// CanTakeSurvey reports whether the role may answer and submit diagnostics.
func (r Role) CanTakeSurvey() bool {
	switch r {
	case RoleAdvisor, RoleFirmAdmin, RoleClient, RoleSuperUser:
		return true
	}
	return false
}

// CanDownloadReports reports whether the role may download AI reports.
func (r Role) CanDownloadReports() bool {
	return r == RoleAdvisor || r == RoleFirmAdmin || r == RoleSuperUser
}
