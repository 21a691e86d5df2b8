// Package store implements the Session Store (spec §4.1, C1): durable
// per-claim state backed by one directory per claim under a base
// directory, matching the persisted state layout in spec §6.
//
// Every mutation is written out (temp-file-then-rename) before the call
// returns, and concurrent writers to the same claim are serialized by a
// per-claim mutex — mutexes are created lazily on first access and kept
// for the process lifetime (spec §9 "Per-claim mutex registry"), the
// same idiom the teacher uses for its in-memory session registry
// (pkg/session/manager.go), here guarding a directory on disk instead
// of a map entry.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/claimflow/pkg/claim"
)

// Store is the file-backed Session Store.
type Store struct {
	baseDir string

	mu      sync.Mutex // guards claimLocks map itself
	claimLocks map[string]*sync.Mutex

	mailMu sync.Mutex // serializes processed_emails.json access
}

// New creates a Store rooted at baseDir. baseDir is created if missing.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create base dir: %w", err)
	}
	return &Store{
		baseDir:    baseDir,
		claimLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex for a claim id, creating it on first access.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.claimLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.claimLocks[id] = l
	}
	return l
}

func (s *Store) claimDir(id string) string {
	return filepath.Join(s.baseDir, "claim_"+id)
}

func (s *Store) pendingDir(id string) string {
	return filepath.Join(s.claimDir(id), "pending_payloads")
}

// AttachmentsDir returns the directory holding a claim's binary attachments.
func (s *Store) AttachmentsDir(id string) string {
	return filepath.Join(s.claimDir(id), "attachments")
}

// writeJSONAtomic writes v as JSON to path via a temp file + rename so a
// partially written record is never observable.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return true, nil
}

// LoadClaim returns the claim record, or (nil, nil) if it doesn't exist.
func (s *Store) LoadClaim(id string) (*claim.Claim, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	var c claim.Claim
	ok, err := readJSON(filepath.Join(s.claimDir(id), "claim.json"), &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// SaveClaim persists the claim record atomically.
func (s *Store) SaveClaim(id string, c *claim.Claim) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	c.UpdatedAt = time.Now()
	return writeJSONAtomic(filepath.Join(s.claimDir(id), "claim.json"), c)
}

// UpdateClaim loads a claim, applies fn, and saves the result, all under
// one critical section. This is the one safe way to do a read-modify-write
// on a claim record: concurrent agent/evaluator workers for the same
// claim (spec §4.7/§4.8 bounded pools) call this instead of pairing
// LoadClaim with SaveClaim, which would let two workers' updates race and
// one clobber the other.
func (s *Store) UpdateClaim(id string, fn func(*claim.Claim) error) (*claim.Claim, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	var c claim.Claim
	ok, err := readJSON(filepath.Join(s.claimDir(id), "claim.json"), &c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("store: update claim: claim %s not found", id)
	}
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()
	if err := writeJSONAtomic(filepath.Join(s.claimDir(id), "claim.json"), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkAgentComplete records that an agent's decision has been recorded
// (spec §4.8 "mark_agent_complete(claim, P.agent)").
func (s *Store) MarkAgentComplete(id, agent string) error {
	_, err := s.UpdateClaim(id, func(c *claim.Claim) error {
		if c.CompletedAgents == nil {
			c.CompletedAgents = map[string]bool{}
		}
		c.CompletedAgents[agent] = true
		return nil
	})
	return err
}

// SetAgentThread records (or replaces) an agent's LLM conversation handle.
// The agent runner calls it on creation (spec §4.7 step 1: "persist
// immediately on create") and again after each run.
func (s *Store) SetAgentThread(id, agent, handle string) error {
	_, err := s.UpdateClaim(id, func(c *claim.Claim) error {
		if c.AgentThreads == nil {
			c.AgentThreads = map[string]string{}
		}
		c.AgentThreads[agent] = handle
		return nil
	})
	return err
}

func (s *Store) loadConversation(id string) (*claim.Conversation, error) {
	var conv claim.Conversation
	_, err := readJSON(filepath.Join(s.claimDir(id), "context.json"), &conv)
	if err != nil {
		return nil, err
	}
	if conv.AttachmentDescriptions == nil {
		conv.AttachmentDescriptions = map[string]string{}
	}
	return &conv, nil
}

// AppendConversation appends an entry to the claim's conversation.
func (s *Store) AppendConversation(id string, entry claim.ConversationEntry) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	conv, err := s.loadConversation(id)
	if err != nil {
		return err
	}
	conv.Entries = append(conv.Entries, entry)
	return writeJSONAtomic(filepath.Join(s.claimDir(id), "context.json"), conv)
}

// Conversation returns a copy of the claim's full conversation history.
func (s *Store) Conversation(id string) (*claim.Conversation, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return s.loadConversation(id)
}

// RecordParsedDoc stores extracted text for an attachment filename.
// Idempotent: a filename already present is left untouched (spec §3
// "Parsed-doc record" invariant).
func (s *Store) RecordParsedDoc(id, filename, text string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), "parsed_docs.json")
	docs := map[string]string{}
	if _, err := readJSON(path, &docs); err != nil {
		return err
	}
	if _, exists := docs[filename]; exists {
		return nil
	}
	docs[filename] = text
	return writeJSONAtomic(path, docs)
}

// ParsedDocs returns the filename -> extracted text map for a claim.
func (s *Store) ParsedDocs(id string) (map[string]string, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), "parsed_docs.json")
	docs := map[string]string{}
	if _, err := readJSON(path, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// WriteAttachmentDescriptions replaces the claim's attachment-description mapping.
func (s *Store) WriteAttachmentDescriptions(id string, descriptions map[string]string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	conv, err := s.loadConversation(id)
	if err != nil {
		return err
	}
	for k, v := range descriptions {
		conv.AttachmentDescriptions[k] = v
	}
	return writeJSONAtomic(filepath.Join(s.claimDir(id), "context.json"), conv)
}

// AttachmentDescriptions returns the claim's filename -> description mapping.
func (s *Store) AttachmentDescriptions(id string) (map[string]string, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	conv, err := s.loadConversation(id)
	if err != nil {
		return nil, err
	}
	return conv.AttachmentDescriptions, nil
}

// SaveAttachment writes an attachment's binary data under the claim's attachments dir.
func (s *Store) SaveAttachment(id, filename string, data []byte) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	dir := s.AttachmentsDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, filename)
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write attachment temp: %w", err)
	}
	return os.Rename(tmp, path)
}

// EnqueuePending persists a new unconsumed tool-call payload for an agent.
func (s *Store) EnqueuePending(id, agent string, payload map[string]any) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	p := claim.PendingPayload{Agent: agent, Payload: payload, Processed: false, Timestamp: time.Now()}
	path := filepath.Join(s.pendingDir(id), agent+"_pending.json")
	return writeJSONAtomic(path, p)
}

// ListUnprocessedPending returns every not-yet-processed pending payload for a claim.
func (s *Store) ListUnprocessedPending(id string) ([]claim.PendingPayload, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	entries, err := os.ReadDir(s.pendingDir(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []claim.PendingPayload
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var p claim.PendingPayload
		ok, err := readJSON(filepath.Join(s.pendingDir(id), e.Name()), &p)
		if err != nil {
			return nil, err
		}
		if ok && !p.Processed {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}

// MarkPendingProcessed marks an agent's pending payload as consumed.
func (s *Store) MarkPendingProcessed(id, agent string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.pendingDir(id), agent+"_pending.json")
	var p claim.PendingPayload
	ok, err := readJSON(path, &p)
	if err != nil || !ok {
		return err
	}
	p.Processed = true
	return writeJSONAtomic(path, p)
}

// PutDecision replaces any prior decision for the agent (spec §3 "at most one" invariant).
func (s *Store) PutDecision(id, agent string, decision any) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), "decisions.json")
	decisions := map[string]claim.Decision{}
	if _, err := readJSON(path, &decisions); err != nil {
		return err
	}
	decisions[agent] = claim.Decision{Agent: agent, Decision: decision, Timestamp: time.Now()}
	return writeJSONAtomic(path, decisions)
}

// Decisions returns the agent -> Decision map for a claim.
func (s *Store) Decisions(id string) (map[string]claim.Decision, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), "decisions.json")
	decisions := map[string]claim.Decision{}
	if _, err := readJSON(path, &decisions); err != nil {
		return nil, err
	}
	return decisions, nil
}

// AppendFollowup adds an open question to the follow-up queue.
func (s *Store) AppendFollowup(id, agent, text string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), "follow_up.json")
	var items []claim.FollowUp
	if _, err := readJSON(path, &items); err != nil {
		return err
	}
	items = append(items, claim.FollowUp{Agent: agent, Question: text, Timestamp: time.Now()})
	return writeJSONAtomic(path, items)
}

// TakeFollowups reads the follow-up queue without clearing it. The queue
// is cleared only by DrainFollowups after a successful send (spec §4.9:
// "if the send fails, the queue is not drained").
func (s *Store) TakeFollowups(id string) ([]claim.FollowUp, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), "follow_up.json")
	var items []claim.FollowUp
	if _, err := readJSON(path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// DrainFollowups removes the on-disk follow-up queue file. Call only after
// the aggregated email has been sent successfully.
func (s *Store) DrainFollowups(id string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), "follow_up.json")
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RecordAgentMessage appends a structured finding to an agent's message log
// (the "<agent>_messages.json" file in spec §6's persisted state layout).
func (s *Store) RecordAgentMessage(id, agent, message string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.claimDir(id), agent+"_messages.json")
	var messages []string
	if _, err := readJSON(path, &messages); err != nil {
		return err
	}
	messages = append(messages, message)
	return writeJSONAtomic(path, messages)
}

// MarkMailProcessed records a mail UID as handled so restarts don't re-process it.
func (s *Store) MarkMailProcessed(uid string) error {
	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	path := filepath.Join(s.baseDir, "processed_emails.json")
	set := map[string]bool{}
	if _, err := readJSON(path, &set); err != nil {
		return err
	}
	set[uid] = true
	return writeJSONAtomic(path, set)
}

// IsMailProcessed reports whether a mail UID has already been ingested.
func (s *Store) IsMailProcessed(uid string) (bool, error) {
	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	path := filepath.Join(s.baseDir, "processed_emails.json")
	set := map[string]bool{}
	if _, err := readJSON(path, &set); err != nil {
		return false, err
	}
	return set[uid], nil
}

// ScanClaims returns the ids of every claim satisfying predicate. Claims are
// read independently of one another and may interleave with concurrent
// writers (spec §5 "cross-claim reads ... may interleave across claims").
func (s *Store) ScanClaims(predicate func(*claim.Claim) bool) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) <= len("claim_") || e.Name()[:6] != "claim_" {
			continue
		}
		id := e.Name()[len("claim_"):]
		c, err := s.LoadClaim(id)
		if err != nil {
			return nil, fmt.Errorf("scan claim %s: %w", id, err)
		}
		if c == nil {
			continue
		}
		if predicate == nil || predicate(c) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
