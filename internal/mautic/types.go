package mautic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ContactCandidate is one record returned by a contact search. The search is
// fuzzy, so Email must be re-checked by the caller.
type ContactCandidate struct {
	ID    string
	Email string
}

// contactRecord is the subset of a Mautic contact this service reads.
type contactRecord struct {
	ID     json.Number `json:"id"`
	Fields struct {
		Core struct {
			Email *struct {
				Value *string `json:"value"`
			} `json:"email"`
		} `json:"core"`
		All struct {
			Email *string `json:"email"`
		} `json:"all"`
	} `json:"fields"`
	DoNotContact []DNCEntry `json:"doNotContact"`
}

func (r contactRecord) email() string {
	if e := r.Fields.Core.Email; e != nil && e.Value != nil {
		return *e.Value
	}
	if r.Fields.All.Email != nil {
		return *r.Fields.All.Email
	}
	return ""
}

// SearchResponse is GET /api/contacts. Mautic returns "contacts" as an
// object keyed by id, or as an empty array when nothing matched. Candidates
// keep the key order of the response body.
type SearchResponse struct {
	Total      json.RawMessage `json:"total"`
	Candidates contactList     `json:"contacts"`
}

type contactList []ContactCandidate

// UnmarshalJSON walks the keyed object token by token so upstream order is
// preserved; a Go map would randomize it.
func (l *contactList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	if trimmed[0] == '[' {
		var records []contactRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return err
		}
		out := make(contactList, 0, len(records))
		for _, r := range records {
			out = append(out, ContactCandidate{ID: r.ID.String(), Email: r.email()})
		}
		*l = out
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("contacts: expected object, got %v", tok)
	}

	var out contactList
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("contacts: unexpected key %v", tok)
		}
		var r contactRecord
		if err := dec.Decode(&r); err != nil {
			return fmt.Errorf("contacts[%s]: %w", key, err)
		}
		id := r.ID.String()
		if id == "" {
			id = key
		}
		out = append(out, ContactCandidate{ID: id, Email: r.email()})
	}
	*l = out
	return nil
}

// DNCEntry is one doNotContact row on a contact.
type DNCEntry struct {
	Channel  string          `json:"channel"`
	Reason   json.RawMessage `json:"reason"`
	Comments string          `json:"comments"`
}

// Contact is GET /api/contacts/{id}.
type Contact struct {
	ID           string
	Email        string
	DoNotContact []DNCEntry
}

// HasEmailDNC reports whether the email channel is suppressed.
func (c *Contact) HasEmailDNC() bool {
	for _, e := range c.DoNotContact {
		if strings.EqualFold(e.Channel, "email") {
			return true
		}
	}
	return false
}

type contactResponse struct {
	Contact *contactRecord `json:"contact"`
}

// DNCRequest is the body of POST /api/contacts/{id}/dnc/email/add.
type DNCRequest struct {
	Reason   int    `json:"reason"`
	Comments string `json:"comments"`
}

// DNCResponse describes an accepted DNC add. BodyErrors is set when Mautic
// answered 200/201 but the body still carries an "errors"/"error" key.
type DNCResponse struct {
	Status     int
	BodyErrors string
}

type errorEnvelope struct {
	Errors json.RawMessage `json:"errors"`
	Error  json.RawMessage `json:"error"`
}

func bodyErrors(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{env.Errors, env.Error} {
		s := string(bytes.TrimSpace(raw))
		switch s {
		case "", "null", "[]", "{}", "false", `""`:
			continue
		}
		return s
	}
	return ""
}
