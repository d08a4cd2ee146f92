package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onionlab/onion/internal/model"
)

type sample struct {
	DiaryID string   `json:"diary_id" validate:"omitempty,uuid"`
	Mood    string   `json:"mood" validate:"max=5"`
	Tags    []string `json:"tags" validate:"max=2"`
}

func TestUserID(t *testing.T) {
	assert.NoError(t, UserID("alice_01"))
	assert.NoError(t, UserID("kakao-12345"))
	assert.Error(t, UserID(""))
	assert.Error(t, UserID("bad id"))
	assert.Error(t, UserID(strings.Repeat("a", 65)))
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{Mood: "calm"}))

	err := Struct(sample{DiaryID: "nope"})
	var ve model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "diary_id", ve.Field)
	assert.Equal(t, "must be a UUID", ve.Message)

	err = Struct(sample{Mood: "furious"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "mood", ve.Field)

	err = Struct(sample{Tags: []string{"a", "b", "c"}})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "tags", ve.Field)
}
