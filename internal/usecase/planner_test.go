package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgw/internal/domain"
)

func plannerWith(response string, skills ...domain.Skill) (*Planner, *mockProvider) {
	provider := &mockProvider{turns: [][]domain.StreamDelta{textTurn(response)}}
	return NewPlanner(provider, &mockSkills{skills: skills}, "gpt-4o-mini", testLogger()), provider
}

func TestPlannerRoutesToSkill(t *testing.T) {
	p, provider := plannerWith(
		`{"skill":"researcher","reasoning":"needs sources","refined_message":"find sources on topic X"}`,
		testSkill("researcher"), testSkill("coder"),
	)

	decision, err := p.Route(context.Background(), "tell me about topic X")
	require.NoError(t, err)
	assert.Equal(t, "researcher", decision.Skill)
	assert.Equal(t, "find sources on topic X", decision.RefinedMessage)

	req := provider.request(0)
	assert.InDelta(t, 0.1, req.Temperature, 0.001)
	assert.Contains(t, req.Messages[0].Content, "researcher")
	assert.Contains(t, req.Messages[0].Content, "coder")
}

func TestPlannerHandlesFencedJSON(t *testing.T) {
	p, _ := plannerWith("```json\n{\"skill\":\"coder\",\"reasoning\":\"code task\",\"refined_message\":\"fix it\"}\n```",
		testSkill("coder"))

	decision, err := p.Route(context.Background(), "fix my code")
	require.NoError(t, err)
	assert.Equal(t, "coder", decision.Skill)
}

func TestPlannerNonJSONRoutesNowhere(t *testing.T) {
	p, _ := plannerWith("I think the researcher would be best for this.", testSkill("researcher"))

	decision, err := p.Route(context.Background(), "anything")
	require.NoError(t, err, "malformed routing output is not an error")
	assert.Empty(t, decision.Skill)
	assert.Contains(t, decision.Reasoning, "not valid JSON")
}

func TestPlannerNullSkill(t *testing.T) {
	p, _ := plannerWith(`{"skill":null,"reasoning":"nothing fits","refined_message":""}`, testSkill("coder"))

	decision, err := p.Route(context.Background(), "sing me a song")
	require.NoError(t, err)
	assert.Empty(t, decision.Skill)
	assert.Equal(t, "nothing fits", decision.Reasoning)
}

func TestPlannerProviderErrorPropagates(t *testing.T) {
	provider := &mockProvider{err: domain.ErrProviderError}
	p := NewPlanner(provider, &mockSkills{}, "gpt-4o-mini", testLogger())

	_, err := p.Route(context.Background(), "anything")
	assert.ErrorIs(t, err, domain.ErrProviderError)
}
