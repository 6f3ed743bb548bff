package imapscanner

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/mail"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// imapMailbox drives a real IMAP session via go-imap/v2. It is the only part
// of this package grounded on a dependency outside the reference pack (see
// DESIGN.md: no IMAP client exists anywhere in the example corpus).
type imapMailbox struct {
	client *imapclient.Client
}

// NewDialer builds the Dialer the Scanner uses in production: a fresh
// TLS-or-plain connection, login, and SELECT per poll tick.
func NewDialer(cfg Config) Dialer {
	return func(ctx context.Context) (Mailbox, error) {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

		var client *imapclient.Client
		var err error
		if cfg.UseTLS {
			client, err = imapclient.DialTLS(addr, &imapclient.Options{
				TLSConfig: &tls.Config{ServerName: cfg.Host},
			})
		} else {
			client, err = imapclient.DialInsecure(addr, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("imapscanner: dial %s: %w", addr, err)
		}

		if err := client.Login(cfg.User, cfg.Password).Wait(); err != nil {
			client.Close()
			return nil, fmt.Errorf("imapscanner: login: %w", err)
		}

		mailboxName := cfg.Mailbox
		if mailboxName == "" {
			mailboxName = "INBOX"
		}
		if _, err := client.Select(mailboxName, nil).Wait(); err != nil {
			client.Close()
			return nil, fmt.Errorf("imapscanner: select %s: %w", mailboxName, err)
		}

		return &imapMailbox{client: client}, nil
	}
}

// FetchUnseen implements Mailbox: searches for messages without \Seen and
// fetches their envelope plus a peeked (non-consuming) body section so a
// failed downstream step doesn't silently mark a message read.
func (m *imapMailbox) FetchUnseen(ctx context.Context) ([]Message, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imapscanner: search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOptions := &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	}
	fetchCmd := m.client.Fetch(imap.UIDSetNum(uids...), fetchOptions)

	var out []Message
	for {
		fetchMsg := fetchCmd.Next()
		if fetchMsg == nil {
			break
		}
		decoded, err := decodeFetchMessage(fetchMsg)
		if err != nil {
			continue
		}
		out = append(out, decoded)
	}
	if err := fetchCmd.Close(); err != nil {
		return out, fmt.Errorf("imapscanner: fetch: %w", err)
	}
	return out, nil
}

// MarkSeen implements Mailbox.
func (m *imapMailbox) MarkSeen(ctx context.Context, uid uint32) error {
	storeFlags := imap.StoreFlags{
		Op:    imap.StoreFlagsAdd,
		Flags: []imap.Flag{imap.FlagSeen},
	}
	return m.client.Store(imap.UIDSetNum(imap.UID(uid)), &storeFlags, nil).Wait()
}

// Close implements Mailbox.
func (m *imapMailbox) Close() error {
	return m.client.Logout().Wait()
}

func decodeFetchMessage(fetchMsg *imapclient.FetchMessageData) (Message, error) {
	var msg Message
	for {
		item := fetchMsg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			msg.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				msg.Subject = data.Envelope.Subject
				msg.MessageID = data.Envelope.MessageID
				if len(data.Envelope.From) > 0 {
					addr := data.Envelope.From[0]
					msg.From = addr.Mailbox + "@" + addr.Host
					msg.FromName = addr.Name
				}
			}
		case imapclient.FetchItemDataBodySection:
			body, err := io.ReadAll(data.Literal)
			if err != nil {
				continue
			}
			msg.Body = extractPlainText(body)
		}
	}
	return msg, nil
}

// extractPlainText does a best-effort extraction of a readable body: parse
// RFC 5322 headers off the front and return whatever remains. This scanner
// only needs pattern-matchable text, not a full MIME tree.
func extractPlainText(raw []byte) string {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	body, err := io.ReadAll(m.Body)
	if err != nil {
		return string(raw)
	}
	return string(body)
}
