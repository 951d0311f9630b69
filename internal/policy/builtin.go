package policy

// BuiltinPolicies returns the policies the engine enforces out of the box.
func BuiltinPolicies() []Policy {
	return []Policy{
		resourceIDPolicy(),
	}
}

func resourceIDPolicy() Policy {
	return Policy{
		Name:     "resource-id",
		Severity: SeverityError,
		Enabled:  true,
		Tags:     []string{"naming"},
		Rego: `package lattice.policies.resource_id

import rego.v1

deny contains violation if {
	input.resource
	resource := input.resource
	not resource.id
	violation := {
		"message": "resource must have an id",
		"severity": "error",
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	id := resource.id
	lower(id) != id
	violation := {
		"message": sprintf("resource id %q must be lowercase", [id]),
		"severity": "error",
		"resource": id,
	}
}
`,
	}
}
