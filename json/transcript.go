package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/cite"
)

// envelope is the v1 wire format for a persisted transcript.
type envelope struct {
	Version        int          `json:"version"`
	ConversationID string       `json:"conversation_id"`
	SavedAt        time.Time    `json:"saved_at"`
	Messages       []messageDTO `json:"messages"`
}

// messageDTO is the JSON representation of a finalized Message.
type messageDTO struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Citations []citationDTO   `json:"citations,omitempty"`
	Sources   []sourceDTO     `json:"sources,omitempty"`
	ToolCalls []toolCallDTO   `json:"tool_calls,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Truncated bool            `json:"truncated,omitempty"`
	Error     *answerErrorDTO `json:"error,omitempty"`
}

type answerErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MarshalTranscript serializes a Transcript to JSON in v1 envelope format.
// Messages that are still streaming are rejected.
func MarshalTranscript(t cite.Transcript) ([]byte, error) {
	env := envelope{
		Version:        1,
		ConversationID: t.ConversationID,
		SavedAt:        t.SavedAt,
		Messages:       make([]messageDTO, len(t.Messages)),
	}
	for i, m := range t.Messages {
		if err := cite.ValidateMessage(m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		env.Messages[i] = marshalMessage(m)
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalTranscript deserializes a Transcript from JSON in v1 envelope
// format and validates every message.
func UnmarshalTranscript(data []byte) (cite.Transcript, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return cite.Transcript{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return cite.Transcript{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	msgs := make([]cite.Message, len(env.Messages))
	for i, dto := range env.Messages {
		m, err := unmarshalMessage(dto)
		if err != nil {
			return cite.Transcript{}, fmt.Errorf("message %d: %w", i, err)
		}
		if err := cite.ValidateMessage(m); err != nil {
			return cite.Transcript{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = m
	}
	return cite.Transcript{
		ConversationID: env.ConversationID,
		SavedAt:        env.SavedAt,
		Messages:       msgs,
	}, nil
}

// SaveTranscript writes a Transcript to a JSON file, creating parent
// directories as needed. The file is replaced atomically.
func SaveTranscript(path string, t cite.Transcript) error {
	data, err := MarshalTranscript(t)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// LoadTranscript reads a Transcript from a JSON file.
func LoadTranscript(path string) (cite.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cite.Transcript{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalTranscript(data)
}

// MarshalMessage serializes a single message, for example an answer printed
// by the CLI. Unlike MarshalTranscript it accepts in-flight answers.
func MarshalMessage(m cite.Message) ([]byte, error) {
	return json.MarshalIndent(marshalMessage(m), "", "  ")
}

func marshalMessage(m cite.Message) messageDTO {
	dto := messageDTO{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Truncated: m.Truncated,
	}
	for _, c := range m.Citations {
		dto.Citations = append(dto.Citations, citationToDTO(c))
	}
	for _, s := range m.Sources {
		dto.Sources = append(dto.Sources, sourceToDTO(s))
	}
	for _, tc := range m.ToolCalls {
		dto.ToolCalls = append(dto.ToolCalls, toolCallToDTO(tc))
	}
	if m.Error != nil {
		dto.Error = &answerErrorDTO{Code: m.Error.Code, Message: m.Error.Message}
	}
	return dto
}

func unmarshalMessage(dto messageDTO) (cite.Message, error) {
	m := cite.Message{
		ID:        dto.ID,
		Role:      cite.Role(dto.Role),
		Content:   dto.Content,
		CreatedAt: dto.CreatedAt,
		Truncated: dto.Truncated,
	}
	for i, c := range dto.Citations {
		if c.ID == nil {
			return cite.Message{}, fmt.Errorf("citation %d: missing id", i)
		}
		m.Citations = append(m.Citations, citationFromDTO(c))
	}
	for _, s := range dto.Sources {
		m.Sources = append(m.Sources, sourceFromDTO(s))
	}
	for i, d := range dto.ToolCalls {
		tc, err := toolCallFromDTO(d)
		if err != nil {
			return cite.Message{}, fmt.Errorf("tool call %d: %w", i, err)
		}
		m.ToolCalls = append(m.ToolCalls, tc)
	}
	if dto.Error != nil {
		m.Error = &cite.AnswerError{Code: dto.Error.Code, Message: dto.Error.Message}
	}
	return m, nil
}
