package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyParsesIntentAndSlots(t *testing.T) {
	llm := replyWith(`Sure! {"intent":"order","reasoning":"wants to buy","extracted":{"product":"Widget","quantity":"2","address":null}}`)
	c := NewIntentClassifier(llm, nil).Classify(context.Background(), "2 widgets please", Context{}, "")

	assert.Equal(t, IntentOrder, c.Intent)
	require.NotNil(t, c.Extracted.Product)
	assert.Equal(t, "Widget", *c.Extracted.Product)
	require.NotNil(t, c.Extracted.Quantity)
	assert.Equal(t, 2, *c.Extracted.Quantity)
	assert.Nil(t, c.Extracted.Address)
}

func TestClassifyFallsBackToChat(t *testing.T) {
	cases := map[string]*scriptedLLM{
		"provider error": failingLLM(),
		"not json":       replyWith("I think this is an order"),
		"unknown intent": replyWith(`{"intent":"REFUND","reasoning":"x"}`),
		"missing intent": replyWith(`{"reasoning":"x"}`),
		"truncated json": replyWith(`{"intent":"ORDER","reasoning":"x"`),
	}
	for name, llm := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewIntentClassifier(llm, nil).Classify(context.Background(), "hi", Context{}, "")
			assert.Equal(t, IntentChat, c.Intent)
			assert.Equal(t, ParseFailureReason, c.Reasoning)
		})
	}
}

func TestClassifyMentionsPendingOrder(t *testing.T) {
	llm := replyWith(`{"intent":"ORDER","reasoning":"continues order","extracted":{"quantity":3}}`)
	convCtx := Context{
		RecentHistory: []string{"user: I want a widget"},
		PendingOrder:  OrderSlots{ProductName: "Widget"},
	}
	NewIntentClassifier(llm, nil).Classify(context.Background(), "3", convCtx, "Be nice")

	system := llm.lastSystem()
	assert.Contains(t, system, "Order in progress (product=Widget)")
	assert.Contains(t, system, "user: I want a widget")
	assert.Contains(t, system, "Assistant persona (for context only): Be nice")
}

func TestExtractJSONObject(t *testing.T) {
	obj, ok := extractJSONObject("prefix {not json} then {\"a\":\"}{\",\"b\":{\"c\":1}} trailing")
	require.True(t, ok)
	assert.Equal(t, `{"a":"}{","b":{"c":1}}`, obj)

	_, ok = extractJSONObject("no braces here")
	assert.False(t, ok)
}

func TestFlexIntAcceptsNumbersAndNumericStrings(t *testing.T) {
	cases := []struct {
		raw  string
		want *int
	}{
		{`{"quantity":4}`, intPtr(4)},
		{`{"quantity":"12"}`, intPtr(12)},
		{`{"quantity":3.0}`, intPtr(3)},
		{`{"quantity":"a few"}`, nil},
		{`{"quantity":null}`, nil},
	}
	for _, tc := range cases {
		c, ok := parseClassification(`{"intent":"ORDER","extracted":` + tc.raw + `}`)
		require.True(t, ok, tc.raw)
		assert.Equal(t, tc.want, c.Extracted.Quantity, tc.raw)
	}
}
