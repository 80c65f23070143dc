package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      Record
		want    Specialist
		wantErr bool
	}{
		{
			name:    "empty id rejected",
			in:      Record{ID: "  "},
			wantErr: true,
		},
		{
			name: "defaults",
			in:   Record{ID: " helper "},
			want: Specialist{ID: "helper", Role: "helper", Domain: "general", Keywords: []string{"general"}, Specialization: 1.1},
		},
		{
			name: "domain bonus and keyword cleanup",
			in:   Record{ID: "db", Role: "DBA", Domain: " Technical ", Keywords: []string{"SQL", " sql", "", "Index"}},
			want: Specialist{ID: "db", Role: "DBA", Domain: "technical", Keywords: []string{"sql", "index"}, Specialization: 2.2},
		},
		{
			name: "keyword contribution capped",
			in:   Record{ID: "wide", Keywords: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}},
			want: Specialist{ID: "wide", Role: "wide", Domain: "general", Keywords: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}, Specialization: 2},
		},
		{
			name: "explicit specialization kept",
			in:   Record{ID: "x", Specialization: 7.5},
			want: Specialist{ID: "x", Role: "x", Domain: "general", Keywords: []string{"general"}, Specialization: 7.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.ID, got.ID)
			assert.Equal(t, tt.want.Role, got.Role)
			assert.Equal(t, tt.want.Domain, got.Domain)
			assert.Equal(t, tt.want.Keywords, got.Keywords)
			assert.InDelta(t, tt.want.Specialization, got.Specialization, 1e-9)
		})
	}
}

func TestSameDefinition(t *testing.T) {
	a, _ := Normalize(Record{ID: "a", Keywords: []string{"x"}, UpdatedAt: t0})
	b, _ := Normalize(Record{ID: "a", Keywords: []string{"y"}, UpdatedAt: t0})
	assert.True(t, sameDefinition(a, b), "equal timestamps are trusted")

	c, _ := Normalize(Record{ID: "a", Keywords: []string{"x"}})
	d, _ := Normalize(Record{ID: "a", Keywords: []string{"x"}})
	e, _ := Normalize(Record{ID: "a", Keywords: []string{"z"}})
	assert.True(t, sameDefinition(c, d))
	assert.False(t, sameDefinition(c, e))
}
