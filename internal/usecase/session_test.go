package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgw/internal/domain"
)

func TestNewSessionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s := NewSession("helper")
		require.Len(t, s.ID, 26, "ULID is 26 characters")
		assert.False(t, seen[s.ID], "duplicate session id %s", s.ID)
		seen[s.ID] = true
	}
}

func TestSessionAddMessageStampsTimestamp(t *testing.T) {
	s := NewSession("helper")
	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "hi"})

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestSessionMessagesReturnsCopy(t *testing.T) {
	s := NewSession("helper")
	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "hi"})

	msgs := s.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "hi", s.Messages()[0].Content)
}

func TestResumeSessionCarriesHistory(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "a"},
	}
	s := ResumeSession("sess-1", "helper", history)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, "helper", s.SkillName)
	assert.Equal(t, 2, s.Len())
}
