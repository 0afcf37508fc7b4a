package core

// Rule names registered by NewDefaultRulesEngine.
const (
	RuleRDOStatusTransition = "rdo_status_transition"
	RuleOfferLock           = "offer_lock"
	RuleBundleIntegrity     = "bundle_integrity"
	RuleMilestoneSequence   = "milestone_sequence"
	RuleSALOverrun          = "sal_overrun"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(RDOStatusTransitionRule())
	engine.Register(OfferLockRule())
	engine.Register(BundleIntegrityRule())
	engine.Register(MilestoneSequenceRule())
	engine.Register(SALOverrunRule())
	return engine
}
