// Package conformance grades a deployment's capability flags into a
// conformance level from 0 to 4. Levels build strictly on each other:
// a capability only counts once every lower level is fully met, so a
// deployment cannot skip ahead.
package conformance

// Flags is the capability record a host reports about itself. It
// describes what the deployment can do, independent of live data.
type Flags struct {
	// Level 1: both representations exist and the human one links to
	// the machine one.
	HasHR       bool `json:"has_hr"`
	HasMR       bool `json:"has_mr"`
	HRLinksToMR bool `json:"hr_links_to_mr"`

	// Level 2: the machine representation links back.
	MRLinksToHR bool `json:"mr_links_to_hr"`

	// Level 3: content identities and conditional reads.
	HasContentIdentity       bool `json:"has_content_identity"`
	SupportsConditionalReads bool `json:"supports_conditional_reads"`

	// Level 4: catalog and precondition-gated writes.
	HasCatalog         bool `json:"has_catalog"`
	SupportsSafeWrites bool `json:"supports_safe_writes"`
}

// Report is the graded outcome: the reached level plus the requirement
// names that passed and failed.
type Report struct {
	Level  int      `json:"level"`
	Passed []string `json:"passed"`
	Failed []string `json:"failed"`
}

// MaxLevel is the highest conformance level.
const MaxLevel = 4

type requirement struct {
	level int
	name  string
	met   func(Flags) bool
}

var requirements = []requirement{
	{1, "has_hr", func(f Flags) bool { return f.HasHR }},
	{1, "has_mr", func(f Flags) bool { return f.HasMR }},
	{1, "hr_links_to_mr", func(f Flags) bool { return f.HRLinksToMR }},
	{2, "mr_links_to_hr", func(f Flags) bool { return f.MRLinksToHR }},
	{3, "has_content_identity", func(f Flags) bool { return f.HasContentIdentity }},
	{3, "supports_conditional_reads", func(f Flags) bool { return f.SupportsConditionalReads }},
	{4, "has_catalog", func(f Flags) bool { return f.HasCatalog }},
	{4, "supports_safe_writes", func(f Flags) bool { return f.SupportsSafeWrites }},
}

// Check grades the flags. The level is the highest n whose
// requirements, and those of every level below it, all pass. Passed
// and Failed list every requirement by name regardless of gating, so
// a host at level 1 still sees which level 3 capabilities it already
// has.
func Check(f Flags) Report {
	report := Report{
		Passed: []string{},
		Failed: []string{},
	}

	levelOK := [MaxLevel + 1]bool{0: true}
	for lvl := 1; lvl <= MaxLevel; lvl++ {
		levelOK[lvl] = true
	}
	for _, req := range requirements {
		if req.met(f) {
			report.Passed = append(report.Passed, req.name)
		} else {
			report.Failed = append(report.Failed, req.name)
			levelOK[req.level] = false
		}
	}

	for lvl := 1; lvl <= MaxLevel && levelOK[lvl]; lvl++ {
		report.Level = lvl
	}
	return report
}
