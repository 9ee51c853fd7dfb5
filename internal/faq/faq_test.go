package faq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func entriesFixture() []*Entry {
	return []*Entry{
		{Question: "What are your opening hours?", Answer: "We are open 9am to 6pm, Monday to Saturday."},
		{Question: "Do you offer free delivery?", Answer: "Delivery is free on orders over $50."},
		{Question: "What is your return policy?", Answer: "Returns are accepted within 30 days with a receipt."},
	}
}

func TestBestMatchPicksHighestOverlap(t *testing.T) {
	match := BestMatch(entriesFixture(), "what are the opening hours on saturday?")
	assert.NotNil(t, match)
	assert.Contains(t, match.Answer, "9am to 6pm")
}

func TestBestMatchRequiresMinimumOverlap(t *testing.T) {
	assert.Nil(t, BestMatch(entriesFixture(), "hours"))
	assert.Nil(t, BestMatch(entriesFixture(), "tell me a joke"))
}

func TestBestMatchEmptyInputs(t *testing.T) {
	assert.Nil(t, BestMatch(nil, "what are your opening hours?"))
	assert.Nil(t, BestMatch(entriesFixture(), ""))
	assert.Nil(t, BestMatch(entriesFixture(), "the a an of"))
}

func TestBestMatchIsDeterministic(t *testing.T) {
	first := BestMatch(entriesFixture(), "do you do free delivery on orders?")
	for i := 0; i < 5; i++ {
		again := BestMatch(entriesFixture(), "do you do free delivery on orders?")
		assert.Equal(t, first.Answer, again.Answer)
	}
}
