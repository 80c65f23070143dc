package main

import "github.com/fyrsmithlabs/switchboard/internal/registry"

// defaultSpecialists seed the registry when no specialists file is set.
func defaultSpecialists() []registry.Record {
	return []registry.Record{
		{
			ID:           "architect",
			Role:         "Software Architect",
			Domain:       "technical",
			Keywords:     []string{"architecture", "design", "distributed", "consensus", "raft", "scaling", "microservices"},
			Instructions: "Weigh trade-offs explicitly and name the failure modes of each option.",
		},
		{
			ID:           "dba",
			Role:         "Database Expert",
			Domain:       "technical",
			Keywords:     []string{"database", "sql", "index", "query", "schema", "shard", "replication"},
			Instructions: "Prefer concrete schema and query examples.",
		},
		{
			ID:           "security",
			Role:         "Security Reviewer",
			Domain:       "security",
			Keywords:     []string{"security", "auth", "token", "encryption", "vulnerability", "secrets"},
			Instructions: "Call out threats first, then mitigations.",
		},
		{
			ID:           "generalist",
			Role:         "Generalist",
			Domain:       registry.GeneralDomain,
			Keywords:     []string{"help", "explain", "overview"},
			Instructions: "Answer plainly and suggest which specialist to ask next when the question goes deep.",
		},
	}
}
