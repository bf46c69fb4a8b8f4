// Package scope defines the closed permission vocabulary of the platform
// and resolves a caller's effective scope set from role defaults and
// per-account grants. Adding a scope or role is a code change here, never
// a runtime string insertion.
package scope

// Scope is a named permission. The set of valid scopes is closed.
type Scope string

const (
	// Wildcard satisfies every requirement check.
	Wildcard Scope = "*"

	PatientsRead  Scope = "patients:read"
	PatientsWrite Scope = "patients:write"
	LabsRead      Scope = "labs:read"
	LabsWrite     Scope = "labs:write"
	NutritionRead Scope = "nutrition:read"
	RecordsShare  Scope = "records:share"
	AccountManage Scope = "account:manage"
	OrgManage     Scope = "org:manage"

	// SignupInitiate is the only scope grantable without a bearer: it lets
	// an anonymous caller start the signup/verification flow.
	SignupInitiate Scope = "signup:initiate"
)

// Role is a closed account role enumeration.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleClinician Role = "clinician"
	RoleCaregiver Role = "caregiver"
	RolePatient   Role = "patient"
	RoleService   Role = "service"
)

// roleScopes is the static role default table. Union with account scopes
// and grants gives the effective set; see Effective.
var roleScopes = map[Role][]Scope{
	RoleAdmin: {Wildcard},
	RoleClinician: {
		PatientsRead, PatientsWrite,
		LabsRead, LabsWrite,
		NutritionRead,
		AccountManage,
	},
	RoleCaregiver: {
		PatientsRead,
		NutritionRead,
	},
	RolePatient: {
		PatientsRead,
		LabsRead,
		NutritionRead,
		RecordsShare,
		AccountManage,
	},
	RoleService: {
		PatientsRead,
		LabsRead,
	},
}

// Defaults returns the role's default scopes, or nil for an unknown role.
// The returned slice is a copy.
func Defaults(role Role) []Scope {
	defaults, ok := roleScopes[role]
	if !ok {
		return nil
	}
	out := make([]Scope, len(defaults))
	copy(out, defaults)
	return out
}

// Effective computes role defaults ∪ accountScopes ∪ grants, deduplicated.
// Order is not significant.
func Effective(role Role, accountScopes, grants []Scope) []Scope {
	seen := make(map[Scope]struct{})
	var out []Scope

	add := func(scopes []Scope) {
		for _, s := range scopes {
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	add(roleScopes[role])
	add(accountScopes)
	add(grants)
	return out
}

// Has reports whether have satisfies every element of need. A wildcard in
// have satisfies anything; an empty need is always satisfied.
func Has(have []Scope, need ...Scope) bool {
	if len(need) == 0 {
		return true
	}
	set := make(map[Scope]struct{}, len(have))
	for _, s := range have {
		if s == Wildcard {
			return true
		}
		set[s] = struct{}{}
	}
	for _, n := range need {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

// Strings converts a scope slice for transport (bearer claims).
func Strings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

// FromStrings converts transport strings back into scopes.
func FromStrings(raw []string) []Scope {
	out := make([]Scope, len(raw))
	for i, s := range raw {
		out[i] = Scope(s)
	}
	return out
}
