package masking

// builtinPatternSpec describes a built-in regex masking pattern before compilation.
type builtinPatternSpec struct {
	Pattern     string
	Replacement string
	Description string
}

// builtinPatterns are the regex masking rules shipped with claimflow,
// independent of any per-deployment custom patterns in config.
var builtinPatterns = map[string]builtinPatternSpec{
	"email": {
		Pattern:     `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,
		Replacement: "[MASKED_EMAIL]",
		Description: "Email addresses",
	},
	"phone": {
		Pattern:     `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
		Replacement: "[MASKED_PHONE]",
		Description: "Phone numbers",
	},
	"ssn": {
		Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		Replacement: "[MASKED_SSN]",
		Description: "Social security numbers",
	},
	"policy_number": {
		Pattern:     `\b[A-Z]{2,5}-\d{6,10}\b`,
		Replacement: "[MASKED_POLICY_NUMBER]",
		Description: "Insurance policy numbers",
	},
	"claim_number": {
		Pattern:     `\bCLM-\d{6,10}\b`,
		Replacement: "[MASKED_CLAIM_NUMBER]",
		Description: "Claim reference numbers",
	},
	"credit_card": {
		Pattern:     `\b(?:\d[ -]*?){13,16}\b`,
		Replacement: "[MASKED_CARD_NUMBER]",
		Description: "Credit/debit card numbers",
	},
}

// builtinPatternGroups groups built-in pattern names so a deployment can
// enable a whole category from claimflow.yaml instead of listing each name.
var builtinPatternGroups = map[string][]string{
	"email": {"email"},
	"phone": {"phone"},
	"pii":   {"email", "phone", "ssn", "credit_card"},
	"claim": {"policy_number", "claim_number"},
	"all":   {"structured_pii", "email", "phone", "ssn", "policy_number", "claim_number", "credit_card"},
}

// builtinCodeMaskers lists the names of registered structural (non-regex) maskers.
var builtinCodeMaskers = []string{"structured_pii"}
