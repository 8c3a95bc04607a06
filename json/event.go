// Package json implements the JSON wire format for stream events and
// transcript persistence.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/cite"
)

// Interface compliance check.
var _ cite.Decoder = DecodeEvent

// Event discriminators as sent on the wire.
const (
	TypeText     = "text"
	TypeCitation = "citation"
	TypeSource   = "source"
	TypeToolCall = "tool_call"
	TypeDone     = "done"
	TypeError    = "error"
)

// frame is the wire envelope of one stream event.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type textData struct {
	Text  *string `json:"text,omitempty"`
	Delta *string `json:"delta,omitempty"`
}

type citationDTO struct {
	ID            *int   `json:"id"`
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle"`
	PageNumber    int    `json:"pageNumber"`
	Text          string `json:"text"`
	StartIndex    *int   `json:"startIndex,omitempty"`
	EndIndex      *int   `json:"endIndex,omitempty"`
}

type sourceDTO struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	PageNumber int    `json:"pageNumber"`
	Excerpt    string `json:"excerpt"`
	URL        string `json:"url,omitempty"`
}

type toolCallDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

type errorData struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DecodeEvent turns one frame into a cite.Event. It is pure. Frames that are
// not well-formed JSON or whose payload has the wrong shape fail with reason
// malformed_payload; frames with an unknown event tag fail with reason
// unknown_discriminator.
func DecodeEvent(data []byte) (cite.Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, malformed("", err)
	}
	if f.Event == "" {
		return nil, malformed("", errors.New("missing event field"))
	}
	switch f.Event {
	case TypeText:
		return decodeText(f.Data)
	case TypeCitation:
		return decodeCitation(f.Data)
	case TypeSource:
		return decodeSource(f.Data)
	case TypeToolCall:
		return decodeToolCall(f.Data)
	case TypeDone:
		return cite.EventDone{}, nil
	case TypeError:
		return decodeError(f.Data)
	default:
		return nil, &cite.DecodeError{Reason: cite.ReasonUnknownDiscriminator, Event: f.Event}
	}
}

func decodeText(raw json.RawMessage) (cite.Event, error) {
	var d textData
	if err := unmarshalData(raw, &d); err != nil {
		return nil, malformed(TypeText, err)
	}
	switch {
	case d.Delta != nil && *d.Delta != "":
		return cite.EventTextDelta{Delta: *d.Delta}, nil
	case d.Text != nil:
		return cite.EventTextReplace{Text: *d.Text}, nil
	case d.Delta != nil:
		return cite.EventTextDelta{}, nil
	default:
		return nil, malformed(TypeText, errors.New("neither delta nor text present"))
	}
}

func decodeCitation(raw json.RawMessage) (cite.Event, error) {
	var d struct {
		Citation *citationDTO `json:"citation"`
	}
	if err := unmarshalData(raw, &d); err != nil {
		return nil, malformed(TypeCitation, err)
	}
	if d.Citation == nil {
		return nil, malformed(TypeCitation, errors.New("missing citation"))
	}
	if d.Citation.ID == nil {
		return nil, malformed(TypeCitation, errors.New("missing citation id"))
	}
	return cite.EventCitation{Citation: citationFromDTO(*d.Citation)}, nil
}

func decodeSource(raw json.RawMessage) (cite.Event, error) {
	var d struct {
		Source *sourceDTO `json:"source"`
	}
	if err := unmarshalData(raw, &d); err != nil {
		return nil, malformed(TypeSource, err)
	}
	if d.Source == nil {
		return nil, malformed(TypeSource, errors.New("missing source"))
	}
	if d.Source.DocumentID == "" {
		return nil, malformed(TypeSource, errors.New("missing source documentId"))
	}
	return cite.EventSource{Source: sourceFromDTO(*d.Source)}, nil
}

func decodeToolCall(raw json.RawMessage) (cite.Event, error) {
	var d struct {
		ToolCall *toolCallDTO `json:"toolCall"`
	}
	if err := unmarshalData(raw, &d); err != nil {
		return nil, malformed(TypeToolCall, err)
	}
	if d.ToolCall == nil {
		return nil, malformed(TypeToolCall, errors.New("missing toolCall"))
	}
	tc, err := toolCallFromDTO(*d.ToolCall)
	if err != nil {
		return nil, malformed(TypeToolCall, err)
	}
	return cite.EventToolCall{ToolCall: tc}, nil
}

func decodeError(raw json.RawMessage) (cite.Event, error) {
	var d errorData
	if err := unmarshalData(raw, &d); err != nil {
		return nil, malformed(TypeError, err)
	}
	if d.Error == "" {
		return nil, malformed(TypeError, errors.New("missing error code"))
	}
	return cite.EventError{Code: d.Error, Message: d.Message}, nil
}

// EncodeEvent serializes evt in the frame format read by DecodeEvent.
func EncodeEvent(evt cite.Event) ([]byte, error) {
	var (
		tag  string
		data any
	)
	switch e := evt.(type) {
	case cite.EventTextDelta:
		tag, data = TypeText, textData{Delta: &e.Delta}
	case cite.EventTextReplace:
		tag, data = TypeText, textData{Text: &e.Text}
	case cite.EventCitation:
		tag, data = TypeCitation, struct {
			Citation citationDTO `json:"citation"`
		}{citationToDTO(e.Citation)}
	case cite.EventSource:
		tag, data = TypeSource, struct {
			Source sourceDTO `json:"source"`
		}{sourceToDTO(e.Source)}
	case cite.EventToolCall:
		tag, data = TypeToolCall, struct {
			ToolCall toolCallDTO `json:"toolCall"`
		}{toolCallToDTO(e.ToolCall)}
	case cite.EventDone:
		tag, data = TypeDone, struct{}{}
	case cite.EventError:
		tag, data = TypeError, errorData{Error: e.Code, Message: e.Message}
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", tag, err)
	}
	return json.Marshal(frame{Event: tag, Data: raw})
}

// unmarshalData decodes a payload object. An absent payload decodes as {}.
func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func malformed(event string, err error) error {
	return &cite.DecodeError{Reason: cite.ReasonMalformedPayload, Event: event, Err: err}
}

func citationFromDTO(d citationDTO) cite.Citation {
	c := cite.Citation{
		DocumentID:    d.DocumentID,
		DocumentTitle: d.DocumentTitle,
		PageNumber:    d.PageNumber,
		Text:          d.Text,
	}
	if d.ID != nil {
		c.ID = *d.ID
	}
	if d.StartIndex != nil && d.EndIndex != nil {
		c.Span = &cite.Span{Start: *d.StartIndex, End: *d.EndIndex}
	}
	return c
}

func citationToDTO(c cite.Citation) citationDTO {
	id := c.ID
	d := citationDTO{
		ID:            &id,
		DocumentID:    c.DocumentID,
		DocumentTitle: c.DocumentTitle,
		PageNumber:    c.PageNumber,
		Text:          c.Text,
	}
	if c.Span != nil {
		start, end := c.Span.Start, c.Span.End
		d.StartIndex, d.EndIndex = &start, &end
	}
	return d
}

func sourceFromDTO(d sourceDTO) cite.SourceCard {
	return cite.SourceCard{
		DocumentID: d.DocumentID,
		Title:      d.Title,
		PageNumber: d.PageNumber,
		Excerpt:    d.Excerpt,
		URL:        d.URL,
	}
}

func sourceToDTO(s cite.SourceCard) sourceDTO {
	return sourceDTO{
		DocumentID: s.DocumentID,
		Title:      s.Title,
		PageNumber: s.PageNumber,
		Excerpt:    s.Excerpt,
		URL:        s.URL,
	}
}

func toolCallFromDTO(d toolCallDTO) (cite.ToolCall, error) {
	if d.ID == "" {
		return cite.ToolCall{}, errors.New("missing tool call id")
	}
	status := cite.ToolStatus(d.Status)
	if !status.Valid() {
		return cite.ToolCall{}, fmt.Errorf("unknown tool call status %q", d.Status)
	}
	tc := cite.ToolCall{
		ID:          d.ID,
		Name:        d.Name,
		Status:      status,
		Description: d.Description,
	}
	if d.Timestamp != nil {
		tc.Timestamp = *d.Timestamp
	}
	return tc, nil
}

func toolCallToDTO(tc cite.ToolCall) toolCallDTO {
	d := toolCallDTO{
		ID:          tc.ID,
		Name:        tc.Name,
		Status:      string(tc.Status),
		Description: tc.Description,
	}
	if !tc.Timestamp.IsZero() {
		ts := tc.Timestamp
		d.Timestamp = &ts
	}
	return d
}
