package auth

const (
	RoleIssuer   = "issuer"
	RoleVerifier = "verifier"
	RoleAuditor  = "auditor"
	RoleAdmin    = "admin"
)

const (
	PermPaystubGenerate     = "paystub.generate"
	PermPaystubRender       = "paystub.render"
	PermPaystubVerify       = "paystub.verify"
	PermThemesRead          = "themes.read"
	PermVerificationsExport = "verifications.export"
	PermAuditRead           = "audit.read"
)

var DefaultPermissions = []string{
	PermPaystubGenerate,
	PermPaystubRender,
	PermPaystubVerify,
	PermThemesRead,
	PermVerificationsExport,
	PermAuditRead,
}

// RolePermissions is the default policy. Admin inherits every other role
// through the casbin role graph rather than listing permissions itself.
var RolePermissions = map[string][]string{
	RoleIssuer: {
		PermPaystubGenerate,
		PermPaystubRender,
		PermPaystubVerify,
		PermThemesRead,
	},
	RoleVerifier: {
		PermPaystubVerify,
		PermThemesRead,
	},
	RoleAuditor: {
		PermPaystubVerify,
		PermVerificationsExport,
		PermAuditRead,
	},
}

var roleParents = map[string][]string{
	RoleAdmin: {RoleIssuer, RoleAuditor},
}

func KnownRole(role string) bool {
	if _, ok := RolePermissions[role]; ok {
		return true
	}
	_, ok := roleParents[role]
	return ok
}
