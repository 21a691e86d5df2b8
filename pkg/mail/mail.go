// Package mail implements the inbound and outbound mail capabilities of
// §6 ("Inbound mail (capability)" / "Outbound mail (capability)") and the
// Mail Ingress poll loop (C2, spec §4.2).
//
// The poll loop shape — dial, login, select INBOX, search unseen, fetch
// the whole body, mark seen, iterate per-message with per-message error
// isolation — is grounded on the teacher pack's reference fetch loop in
// other_examples/ibauk-ebcfetch's mainloop.go, rewritten against
// github.com/emersion/go-imap's client API instead of that file's direct
// inlined loop. Outbound send is grounded the same way that file sends
// its responses, rebuilt on github.com/xhit/go-simple-mail/v2 since the
// reference file itself doesn't carry a send path.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	sasl "github.com/emersion/go-sasl"
	gomail "github.com/xhit/go-simple-mail/v2"
)

// Config holds the environment configuration for mail transports (spec §6
// "Environment configuration").
type Config struct {
	ImapHost     string
	ImapPort     int
	ImapUser     string
	ImapPassword string
	ImapTLS      bool

	SmtpHost     string
	SmtpPort     int
	SmtpUser     string
	SmtpPassword string
	SmtpFrom     string

	PollInterval time.Duration
}

// Attachment is a raw attachment extracted from an inbound message, before
// the admission rules of §4.5 have been applied.
type Attachment struct {
	Filename string
	Size     int64
	Bytes    []byte
}

// Message is a normalized inbound message (spec §6 "poll_unseen").
type Message struct {
	UID         uint32
	Sender      string
	Subject     string
	Headers     mail.Header
	Text        string
	HTML        string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// Poller implements poll_unseen/mark_seen against an IMAP inbox.
type Poller struct {
	cfg Config
}

// NewPoller builds a Poller from config.
func NewPoller(cfg Config) *Poller {
	return &Poller{cfg: cfg}
}

func (p *Poller) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", p.cfg.ImapHost, p.cfg.ImapPort)
	var c *client.Client
	var err error
	if p.cfg.ImapTLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: p.cfg.ImapHost})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("mail: dial %s: %w", addr, err)
	}

	authClient := sasl.NewPlainClient("", p.cfg.ImapUser, p.cfg.ImapPassword)
	if err := c.Authenticate(authClient); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("mail: authenticate %s: %w", p.cfg.ImapUser, err)
	}
	return c, nil
}

// PollUnseen fetches every unseen message in INBOX, marks each seen, and
// returns them normalized (spec §4.2 step 1 and §6).
func (p *Poller) PollUnseen(ctx context.Context) ([]Message, error) {
	c, err := p.dial()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("mail: select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("mail: search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid, imap.FetchInternalDate}
	messages := make(chan *imap.Message, len(uids)+1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var out []Message
	for msg := range messages {
		select {
		case <-ctx.Done():
			continue
		default:
		}

		r := msg.GetBody(section)
		if r == nil {
			slog.Warn("mail: server returned no body", "uid", msg.Uid)
			continue
		}
		parsed, err := parseMessage(r, msg.InternalDate)
		if err != nil {
			slog.Warn("mail: parse failed, skipping message", "uid", msg.Uid, "error", err)
			continue
		}
		parsed.UID = msg.Uid
		out = append(out, *parsed)
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("mail: fetch: %w", err)
	}

	// Mark every fetched UID seen regardless of downstream parse outcome —
	// a message this ingress has looked at is never re-offered (spec §4.2 step 1).
	if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}, nil); err != nil {
		slog.Warn("mail: mark seen failed", "error", err)
	}

	return out, nil
}

// parseMessage decodes a raw RFC 5322 message into a normalized Message.
// MIME structure walking uses the standard library (net/mail, mime,
// mime/multipart) since no MIME-parsing library is present anywhere in
// the pack; this is the one ambient concern where stdlib use is justified
// in DESIGN.md rather than grounded on a third-party dependency.
func parseMessage(r io.Reader, internalDate time.Time) (*Message, error) {
	m, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	subject := decodeHeaderWord(m.Header.Get("Subject"))
	from := m.Header.Get("From")
	addr, err := mail.ParseAddress(from)
	sender := strings.ToLower(strings.TrimSpace(from))
	if err == nil {
		sender = strings.ToLower(addr.Address)
	}

	out := &Message{
		Sender:     sender,
		Subject:    subject,
		Headers:    m.Header,
		ReceivedAt: reconcileTimestamp(m.Header, internalDate),
	}

	mediaType, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		text, err := decodeBody(m.Body, m.Header.Get("Content-Transfer-Encoding"))
		if err == nil {
			out.Text = text
		}
		return out, nil
	}

	if err := walkParts(multipart.NewReader(m.Body, params["boundary"]), out); err != nil {
		return nil, fmt.Errorf("walking multipart body: %w", err)
	}
	return out, nil
}

func walkParts(mr *multipart.Reader, out *Message) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err == nil && strings.HasPrefix(mediaType, "multipart/") {
			if err := walkParts(multipart.NewReader(part, params["boundary"]), out); err != nil {
				slog.Warn("mail: nested multipart part failed, skipping", "error", err)
			}
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		filename := part.FileName()
		isAttachment := strings.HasPrefix(strings.ToLower(disposition), "attachment") || filename != ""

		data, err := decodeBodyBytes(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Warn("mail: decoding part failed, skipping", "filename", filename, "error", err)
			continue
		}

		if isAttachment {
			out.Attachments = append(out.Attachments, Attachment{
				Filename: decodeHeaderWord(filename),
				Size:     int64(len(data)),
				Bytes:    data,
			})
			continue
		}

		switch strings.ToLower(mediaType) {
		case "text/html":
			out.HTML += string(data)
		default:
			out.Text += string(data)
		}
	}
}

func decodeBody(r io.Reader, encoding string) (string, error) {
	data, err := decodeBodyBytes(r, encoding)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeBodyBytes(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		clean := bytes.Map(func(rn rune) rune {
			if rn == '\n' || rn == '\r' || rn == ' ' || rn == '\t' {
				return -1
			}
			return rn
		}, raw)
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
		n, err := base64.StdEncoding.Decode(decoded, clean)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 part: %w", err)
		}
		return decoded[:n], nil
	default:
		return io.ReadAll(r)
	}
}

func decodeHeaderWord(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// reconcileTimestamp applies the supplemented reconciliation rule: the
// effective received time is the earliest of the IMAP INTERNALDATE and
// any Resent-Date or X-Received header present, since a message can be
// re-sent through an intermediary that rewrites its envelope date.
func reconcileTimestamp(h mail.Header, internalDate time.Time) time.Time {
	earliest := internalDate
	candidates := append([]string{}, h["Resent-Date"]...)
	for _, xr := range h["X-Received"] {
		if ts := extractXReceivedTime(xr); ts != "" {
			candidates = append(candidates, ts)
		}
	}
	for _, c := range candidates {
		if t, err := mail.ParseDate(c); err == nil {
			if earliest.IsZero() || t.Before(earliest) {
				earliest = t
			}
		}
	}
	return earliest
}

// extractXReceivedTime pulls the trailing date out of an X-Received
// header value, which ends with "; <date>" per RFC 5321 trace conventions.
func extractXReceivedTime(xr string) string {
	idx := strings.LastIndex(xr, ";")
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(xr[idx+1:])
}

// Sender implements the outbound mail capability (spec §6 "send(to,
// subject, html) -> bool", one retry on failure).
type Sender struct {
	cfg Config
}

// NewSender builds a Sender from config.
func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg}
}

// Send delivers an HTML email, retrying once on failure.
func (s *Sender) Send(to, subject, html string) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := s.sendOnce(to, subject, html); err != nil {
			lastErr = err
			slog.Warn("mail: send attempt failed", "to", to, "attempt", attempt, "error", err)
			continue
		}
		return true, nil
	}
	return false, lastErr
}

func (s *Sender) sendOnce(to, subject, html string) error {
	server := gomail.NewSMTPClient()
	server.Host = s.cfg.SmtpHost
	server.Port = s.cfg.SmtpPort
	server.Username = s.cfg.SmtpUser
	server.Password = s.cfg.SmtpPassword
	server.Encryption = gomail.EncryptionSTARTTLS
	server.ConnectTimeout = 15 * time.Second
	server.SendTimeout = 15 * time.Second

	client, err := server.Connect()
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}

	email := gomail.NewMSG()
	email.SetFrom(s.cfg.SmtpFrom).
		AddTo(to).
		SetSubject(subject).
		SetBody(gomail.TextHTML, html)

	if email.Error != nil {
		return fmt.Errorf("building message: %w", email.Error)
	}
	if err := email.Send(client); err != nil {
		return fmt.Errorf("sending: %w", err)
	}
	return nil
}

// Handler processes one normalized inbound message. Per §4.2 step 2e, the
// UID is recorded processed after this returns, regardless of outcome.
type Handler func(ctx context.Context, msg Message) error

// Run polls forever at the configured interval, isolating per-message
// failures so one bad message never aborts the batch or the loop (spec
// §4.2 "transient connection errors log and retry on next tick").
func Run(ctx context.Context, poller *Poller, isProcessed func(uid string) (bool, error), markProcessed func(uid string) error, handle Handler) {
	interval := poller.cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tick(ctx, poller, isProcessed, markProcessed, handle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func tick(ctx context.Context, poller *Poller, isProcessed func(uid string) (bool, error), markProcessed func(uid string) error, handle Handler) {
	msgs, err := poller.PollUnseen(ctx)
	if err != nil {
		slog.Error("mail: poll failed, retrying next tick", "error", err)
		return
	}

	for _, msg := range msgs {
		uid := fmt.Sprintf("%d", msg.UID)
		seen, err := isProcessed(uid)
		if err != nil {
			slog.Error("mail: checking processed set failed, skipping message", "uid", uid, "error", err)
			continue
		}
		if seen {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("mail: handler panicked, isolating", "uid", uid, "panic", r)
				}
			}()
			if err := handle(ctx, msg); err != nil {
				slog.Error("mail: handoff failed", "uid", uid, "error", err)
			}
		}()

		// Recorded after handoff regardless of success (spec §4.2 step 2e).
		if err := markProcessed(uid); err != nil {
			slog.Error("mail: marking processed failed", "uid", uid, "error", err)
		}
	}
}

