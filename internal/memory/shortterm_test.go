package memory

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortTerm_EvictsOldest(t *testing.T) {
	st := NewShortTerm(10)
	for i := 1; i <= 12; i++ {
		st.Add(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	require.Equal(t, 10, st.Len())
	turns := st.Turns()
	assert.Equal(t, "q3", turns[0].User)
	assert.Equal(t, "q12", turns[9].User)
}

func TestShortTerm_Context(t *testing.T) {
	st := NewShortTerm(3)
	assert.Equal(t, "No recent conversation history.", st.Context(true))

	st.Add("What is SOC 2?", "A security attestation.")
	st.Add("And ISO 27001?", strings.Repeat("x", 250))

	got := st.Context(true)
	assert.True(t, strings.HasPrefix(got, "## Recent Conversation History\n\n"))
	assert.Contains(t, got, "**Turn 1:**\nUser: What is SOC 2?\nAgent: A security attestation.\n\n")
	assert.Contains(t, got, "**Turn 2:**\nUser: And ISO 27001?\nAgent: "+strings.Repeat("x", 200)+"...\n\n")
}

func TestShortTerm_Disabled(t *testing.T) {
	st := NewShortTerm(3)
	st.Add("hello there", "hi")
	st.SetDisabled(true)

	assert.Equal(t, "No recent conversation history.", st.Context(true))
	assert.Contains(t, st.Context(false), "User: hello there")

	st.SetDisabled(false)
	assert.Contains(t, st.Context(true), "User: hello there")
}

func TestShortTerm_ClearAndCapacity(t *testing.T) {
	st := NewShortTerm(0)
	assert.Equal(t, DefaultShortTermSize, st.Capacity())

	st.Add("a", "b")
	st.Clear()
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, "No recent conversation history.", st.Context(false))
}

func TestShortTerm_ConcurrentAdds(t *testing.T) {
	st := NewShortTerm(10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Add(fmt.Sprintf("q%d", i), "a")
			_ = st.Context(true)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, st.Len())
}
