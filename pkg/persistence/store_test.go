package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewStoreWithNilDBDisablesPersistence(t *testing.T) {
	s := NewStore(nil, 0, zerolog.Nop())
	defer s.Close()

	s.Enqueue(SessionSnapshot{ID: "sess-1", StartTime: time.Now()})

	if dropped := s.Dropped(); dropped != 0 {
		t.Errorf("Dropped() = %d, want 0 when persistence is disabled", dropped)
	}
}

func TestNewStoreDefaultsBufferSize(t *testing.T) {
	s := NewStore(nil, -5, zerolog.Nop())
	defer s.Close()

	if cap(s.queue) != BufferSize {
		t.Errorf("queue capacity = %d, want default %d", cap(s.queue), BufferSize)
	}
}

func TestIsConstraintViolationMatchesPqClasses(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New(`pq: duplicate key value violates unique constraint "correlation_sessions_pkey"`), true},
		{errors.New("pq: insert or update violates foreign key constraint"), true},
		{errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), false},
		{errors.New("pq: the database system is starting up"), false},
	}
	for _, c := range cases {
		if got := isConstraintViolation(c.err); got != c.want {
			t.Errorf("isConstraintViolation(%q) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestContainsAny(t *testing.T) {
	if !containsAny("pq: duplicate key", "duplicate key", "constraint") {
		t.Error("containsAny failed to match a present substring")
	}
	if containsAny("connection refused", "duplicate key", "constraint") {
		t.Error("containsAny matched when no substring is present")
	}
}
