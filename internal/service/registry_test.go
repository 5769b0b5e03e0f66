package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityRegistry(t *testing.T) {
	r := NewEntityRegistry()
	r.Register("expense.claim", EntityModule{Module: "expense", ActionURL: "https://app.example.com/expenses/%s"})
	r.Register("hr.leave_request", EntityModule{Module: "hr"})

	m, ok := r.Resolve("expense.claim")
	assert.True(t, ok)
	assert.Equal(t, "expense", m.Module)

	_, ok = r.Resolve("unknown.kind")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"expense.claim", "hr.leave_request"}, r.Types())
}

func TestEntityRegistry_LaterRegistrationWins(t *testing.T) {
	r := NewEntityRegistry()
	r.Register("expense.claim", EntityModule{Module: "expense"})
	r.Register("expense.claim", EntityModule{Module: "finance"})

	m, _ := r.Resolve("expense.claim")
	assert.Equal(t, "finance", m.Module)
}
