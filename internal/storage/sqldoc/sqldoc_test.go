package sqldoc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{"dollar", Dialect{Placeholder: Dollar}, "SELECT body FROM documents WHERE collection = ? AND doc_key = ?", "SELECT body FROM documents WHERE collection = $1 AND doc_key = $2"},
		{"question", Dialect{Placeholder: Question}, "DELETE FROM vertices WHERE graph = ?", "DELETE FROM vertices WHERE graph = ?"},
		{"none", Dialect{}, "SELECT 1 WHERE ? = ?", "SELECT 1 WHERE ? = ?"},
		{"no params", Dialect{Placeholder: Dollar}, "SELECT name FROM graphs", "SELECT name FROM graphs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &DB{dialect: tt.dialect}
			assert.Equal(t, tt.want, s.bind(tt.query))
		})
	}
}

func TestNewRejectsNilDatabase(t *testing.T) {
	_, err := New(context.Background(), nil, Dialect{Name: "test"})
	assert.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	var s *DB
	assert.NoError(t, s.Close())
	assert.NoError(t, (&DB{}).Close())
}
