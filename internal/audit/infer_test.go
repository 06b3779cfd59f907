package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingularize(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"companies", "company"},
		{"entries", "entry"},
		{"boxes", "box"},
		{"statuses", "status"},
		{"quizzes", "quizz"},
		{"contacts", "contact"},
		{"folders", "folder"},
		{"class", "class"},
		{"address", "address"},
		{"data", "data"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, Singularize(tt.word))
		})
	}
}

func TestInferEntity(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		packName string
		want     EntityRef
	}{
		{
			name:     "collection",
			path:     "/api/crm/contacts",
			packName: "crm",
			want:     EntityRef{Kind: "contact"},
		},
		{
			name:     "numeric id",
			path:     "/api/crm/contacts/123",
			packName: "crm",
			want:     EntityRef{Kind: "contact", ID: "123"},
		},
		{
			name:     "uuid id",
			path:     "/api/vault/folders/550e8400-e29b-41d4-a716-446655440000",
			packName: "vault",
			want:     EntityRef{Kind: "folder", ID: "550e8400-e29b-41d4-a716-446655440000"},
		},
		{
			name:     "nested resource",
			path:     "/api/forms/xyz-form/entries/456",
			packName: "forms",
			want:     EntityRef{Kind: "entry", ID: "456"},
		},
		{
			name:     "nested collection",
			path:     "/api/vault/folders/abc/items",
			packName: "vault",
			want:     EntityRef{Kind: "item"},
		},
		{
			name:     "pack root",
			path:     "/api/crm",
			packName: "crm",
			want:     EntityRef{Kind: "crm"},
		},
		{
			name:     "id directly under pack",
			path:     "/api/crm/789",
			packName: "crm",
			want:     EntityRef{Kind: "crm", ID: "789"},
		},
		{
			name:     "no api namespace",
			path:     "/crm/companies/12",
			packName: "crm",
			want:     EntityRef{Kind: "company", ID: "12"},
		},
		{
			name:     "trailing slash",
			path:     "/api/crm/contacts/",
			packName: "crm",
			want:     EntityRef{Kind: "contact"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferEntity(tt.path, tt.packName))
		})
	}
}

func TestLooksLikeID(t *testing.T) {
	assert.True(t, looksLikeID("123"))
	assert.True(t, looksLikeID("550e8400-e29b-41d4-a716-446655440000"))
	assert.False(t, looksLikeID("contacts"))
	assert.False(t, looksLikeID("v2"))
	assert.False(t, looksLikeID(""))
}
