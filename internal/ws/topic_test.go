package ws

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTopics(t *testing.T) {
	assert.Equal(t,
		[]Topic{"user:42", "role:GEOMETRA"},
		DefaultTopics(Principal{UserID: "42", Role: "Geometra"}),
	)
	assert.Equal(t, []Topic{"user:42"}, DefaultTopics(Principal{UserID: "42"}))
}

func TestTopicKind(t *testing.T) {
	assert.Equal(t, TopicKindPersonal, PersonalTopic("u1").Kind())
	assert.Equal(t, TopicKindRole, RoleTopic("admin").Kind())
	assert.Equal(t, TopicKindEntity, EntityTopic(EntityPractice, "P1").Kind())
	assert.Equal(t, TopicKindEntity, EntityTopic(EntityClient, "C1").Kind())
	assert.Equal(t, TopicKindShared, TopicWhatsAppUpdates.Kind())
}

func TestParseEntityID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "P1", want: "P1"},
		{raw: "  c-0042_x ", want: "c-0042_x"},
		{raw: "550e8400-e29b-41d4-a716-446655440000", want: "550e8400-e29b-41d4-a716-446655440000"},
		{raw: "", wantErr: true},
		{raw: "-leading", wantErr: true},
		{raw: "has space", wantErr: true},
		{raw: "user:1", wantErr: true},
		{raw: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseEntityID(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSubscription)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
