package masking

import (
	"log/slog"

	"github.com/codeready-toolchain/claimflow/pkg/config"
)

// Service applies data masking to claim correspondence content before it
// leaves the claim's own store — audit logs, error reports, anything that
// might end up somewhere less access-controlled than the claim record
// itself. Created once at application startup (singleton). Thread-safe and
// stateless aside from its compiled patterns.
type Service struct {
	cfg           *config.MaskingConfig
	patterns      map[string]*CompiledPattern // Built-in + custom compiled patterns
	patternGroups map[string][]string         // Group name → pattern names
	codeMaskers   map[string]Masker           // Registered code-based maskers
	customNames   []string                    // Names of compiled custom patterns
}

// NewService creates a masking service with compiled patterns and registered
// code-based maskers. All patterns are compiled eagerly at creation time.
// Invalid patterns are logged and skipped. A nil cfg means masking never runs.
func NewService(cfg *config.MaskingConfig) *Service {
	s := &Service{
		cfg:           cfg,
		patterns:      make(map[string]*CompiledPattern),
		patternGroups: builtinPatternGroups,
		codeMaskers:   make(map[string]Masker),
	}

	s.compileBuiltinPatterns()
	s.compileCustomPatterns(cfg)
	s.registerMasker(&StructuredPIIMasker{})

	slog.Info("masking service initialized",
		"builtin_patterns", len(builtinPatterns),
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers))

	return s
}

// Mask applies the configured masking rules to content and returns the
// result. Returns content unchanged if masking is disabled, unconfigured,
// empty, or s itself is nil (callers that never built a Service can pass
// a nil *Service through rather than branching at every call site). On
// masking failure, returns a redaction notice (fail-closed) rather than
// risk leaking claimant PII.
func (s *Service) Mask(content string) string {
	if s == nil || s.cfg == nil || !s.cfg.Enabled || content == "" {
		return content
	}

	resolved := s.resolvePatterns(s.cfg)
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		return content
	}

	masked, err := s.applyMasking(content, resolved)
	if err != nil {
		slog.Error("masking: failed, redacting content (fail-closed)", "error", err)
		return "[REDACTED: data masking failure — content could not be safely processed]"
	}

	return masked
}

// applyMasking applies code-based maskers then regex patterns to content.
func (s *Service) applyMasking(content string, resolved *resolvedPatterns) (string, error) {
	masked := content

	// Phase 1: Code-based maskers (more specific, structural awareness)
	for _, maskerName := range resolved.codeMaskerNames {
		masker, ok := s.codeMaskers[maskerName]
		if !ok {
			continue
		}
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}

	// Phase 2: Regex patterns (general sweep)
	for _, pattern := range resolved.regexPatterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked, nil
}

// registerMasker registers a code-based masker by its name.
func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
