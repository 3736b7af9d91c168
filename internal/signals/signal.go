// Package signals consumes approval-workflow signals from a Redis stream and
// drives the coordinator with them.
package signals

import (
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/redis/go-redis/v9"
)

type Type string

const (
	TypeSubmit  Type = "submit"
	TypeApprove Type = "approve"
	TypeReject  Type = "reject"
)

// Signal is one workflow event. A zero RevisionNumber targets the open
// draft.
type Signal struct {
	ID             string
	Type           Type
	DocumentID     string
	RevisionNumber int64
	Actor          string
	Comment        string
}

func (s Signal) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required, validation.In(TypeSubmit, TypeApprove, TypeReject)),
		validation.Field(&s.DocumentID, validation.Required),
		validation.Field(&s.RevisionNumber, validation.Min(int64(0))),
		validation.Field(&s.Actor, validation.Required),
	)
}

// Values renders the signal as stream fields.
func (s Signal) Values() map[string]any {
	values := map[string]any{
		"type":       string(s.Type),
		"documentId": s.DocumentID,
		"actor":      s.Actor,
		"comment":    s.Comment,
	}
	if s.RevisionNumber > 0 {
		values["revisionNumber"] = strconv.FormatInt(s.RevisionNumber, 10)
	}
	return values
}

func parseSignal(msg redis.XMessage) (Signal, error) {
	sig := Signal{
		ID:         msg.ID,
		Type:       Type(strings.ToLower(field(msg, "type"))),
		DocumentID: field(msg, "documentId"),
		Actor:      field(msg, "actor"),
		Comment:    field(msg, "comment"),
	}
	if raw := field(msg, "revisionNumber"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return sig, fmt.Errorf("revisionNumber %q is not a number", raw)
		}
		sig.RevisionNumber = n
	}
	if err := sig.Validate(); err != nil {
		return sig, err
	}
	return sig, nil
}

func field(msg redis.XMessage, name string) string {
	value, ok := msg.Values[name]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// Result is the outcome record written to the result stream.
type Result struct {
	SignalID         string
	DocumentID       string
	Type             Type
	Status           string
	Code             string
	Message          string
	RevisionNumber   int64
	PublishedVersion int64
}

func (r Result) Values() map[string]any {
	return map[string]any{
		"signalId":         r.SignalID,
		"documentId":       r.DocumentID,
		"type":             string(r.Type),
		"status":           r.Status,
		"code":             r.Code,
		"message":          r.Message,
		"revisionNumber":   strconv.FormatInt(r.RevisionNumber, 10),
		"publishedVersion": strconv.FormatInt(r.PublishedVersion, 10),
	}
}
