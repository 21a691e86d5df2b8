// Package thread implements the Thread Resolver (spec §4.3, C3): mapping
// a (sender, subject) pair observed on an inbound message to an existing
// or newly minted claim id.
//
// The normalization and fingerprinting approach is grounded on the
// teacher's Slack message-threading helper (pkg/slack/fingerprint.go),
// which lowercases and collapses whitespace before hashing a thread key;
// here the key is (sender, normalized subject) instead of Slack message
// text, and the hash is SHA-1 over "sender|subject" per spec §4.3.
package thread

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
	"github.com/codeready-toolchain/claimflow/pkg/store"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	subjectTagRe = regexp.MustCompile(`(?i)CLM-[A-Za-z0-9-]{6,}`)
	replyPrefixRe = regexp.MustCompile(`(?i)^(re|fwd|fw):\s*`)
	bracketTagRe = regexp.MustCompile(`(?i)\[\s*CLM-[A-Za-z0-9-]*\s*\]`)
)

// NormalizeSubject lowercases, strips a leading re:/fwd:/fw: prefix and any
// "[CLM-...]" tag, and collapses whitespace (spec §4.3 "Subject fingerprint").
// Repeated prefixes ("Re: Re: ...", a forwarded reply) are stripped in a loop
// since mail clients commonly chain them.
func NormalizeSubject(subject string) string {
	s := strings.ToLower(subject)
	s = bracketTagRe.ReplaceAllString(s, "")
	for {
		stripped := replyPrefixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint computes the stable subject fingerprint for a sender/subject pair.
func Fingerprint(sender, normalizedSubject string) string {
	h := sha1.Sum([]byte(sender + "|" + normalizedSubject))
	return hex.EncodeToString(h[:])
}

// ExtractSubjectTag returns the first CLM-... token found in subject, or "".
func ExtractSubjectTag(subject string) string {
	m := subjectTagRe.FindString(subject)
	return strings.ToUpper(m)
}

// Resolver resolves inbound mail to a claim id (spec §4.3).
type Resolver struct {
	store *store.Store
}

// New creates a Resolver backed by the given session store.
func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve implements the four-step precedence from spec §4.3. It returns
// the resolved claim id and whether that id is newly minted (no existing
// claim to load).
func (r *Resolver) Resolve(sender, subject string) (claimID string, isNew bool, err error) {
	sender = strings.ToLower(strings.TrimSpace(sender))

	// 1. Subject tag: use it only if a session for that id already exists.
	if tag := ExtractSubjectTag(subject); tag != "" {
		existing, err := r.store.LoadClaim(tag)
		if err != nil {
			return "", false, fmt.Errorf("thread: checking subject tag %s: %w", tag, err)
		}
		if existing != nil {
			return tag, false, nil
		}
	}

	normalized := NormalizeSubject(subject)

	// 2. Subject fingerprint: fires only on an unambiguous single match.
	if normalized != "" {
		fp := Fingerprint(sender, normalized)
		ids, err := r.store.ScanClaims(func(c *claim.Claim) bool {
			return c.SenderEmail == sender && c.SubjectFP == fp
		})
		if err != nil {
			return "", false, fmt.Errorf("thread: scanning for fingerprint match: %w", err)
		}
		if len(ids) == 1 {
			return ids[0], false, nil
		}
	}

	// 3. Last-active fallback: only when the normalized subject is empty
	// (spec §9 open question — an all-tag subject normalizes to empty, so
	// this rule, not fingerprinting, is what then applies to it).
	if normalized == "" {
		ids, err := r.store.ScanClaims(func(c *claim.Claim) bool {
			return c.SenderEmail == sender && c.Stage != claim.StageComplete
		})
		if err != nil {
			return "", false, fmt.Errorf("thread: scanning for last-active claim: %w", err)
		}
		if len(ids) == 1 {
			return ids[0], false, nil
		}
	}

	// 4. Mint a new claim id.
	id, err := mintClaimID()
	if err != nil {
		return "", false, fmt.Errorf("thread: minting claim id: %w", err)
	}
	return id, true, nil
}

// mintClaimID allocates "CLM-" followed by 10 uppercase hex characters
// (spec §4.3 step 4; general form in §3 allows any uppercase base-36
// suffix of at least 6 characters).
func mintClaimID() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "CLM-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
