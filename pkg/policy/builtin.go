package policy

// BuiltinPolicies returns the policies compiled into rigup.
func BuiltinPolicies() []Policy {
	return []Policy{
		serverExcludesInteractivePolicy(),
		secretsResolvedPolicy(),
		unattendedInteractivePolicy(),
	}
}

// serverExcludesInteractivePolicy blocks GUI installer capabilities on
// hosts profiled as servers. Servers are headless; launching a graphical
// installer there can never be verified or completed.
func serverExcludesInteractivePolicy() Policy {
	return Policy{
		Name:        "server-excludes-interactive",
		Description: "Denies interactive GUI capabilities when the computer type is server",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package rigup.policies.server

import rego.v1

deny contains violation if {
	input.profile.computer_type == "server"
	some entry in input.entries
	entry.interactive
	violation := {
		"message": sprintf("capability %s needs a GUI session and cannot run on a server", [entry.capability_id]),
		"severity": "error",
		"capability": entry.capability_id,
	}
}
`,
	}
}

// secretsResolvedPolicy blocks scheduling a capability whose secret was
// not resolved. The planner also enforces this; the policy keeps the rule
// visible and overridable alongside the others.
func secretsResolvedPolicy() Policy {
	return Policy{
		Name:        "secrets-resolved",
		Description: "Denies capabilities whose required secret is not available",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package rigup.policies.secrets

import rego.v1

deny contains violation if {
	some entry in input.entries
	entry.requires_secret != ""
	not entry.secret_present
	violation := {
		"message": sprintf("capability %s requires secret %s which is not set", [entry.capability_id, entry.requires_secret]),
		"severity": "error",
		"capability": entry.capability_id,
	}
}
`,
	}
}

// unattendedInteractivePolicy warns when interactive capabilities are
// planned in unattended mode: nobody will be there to click through the
// installer, so they will end attempted-unverified.
func unattendedInteractivePolicy() Policy {
	return Policy{
		Name:        "unattended-interactive",
		Description: "Warns about interactive capabilities planned in unattended mode",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package rigup.policies.unattended

import rego.v1

deny contains violation if {
	input.unattended
	some entry in input.entries
	entry.interactive
	violation := {
		"message": sprintf("capability %s is interactive and will stay unverified in unattended mode", [entry.capability_id]),
		"severity": "warning",
		"capability": entry.capability_id,
	}
}
`,
	}
}
