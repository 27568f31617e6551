package es

import (
	"testing"

	"docqa-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilterClauseNilFilter(t *testing.T) {
	assert.Nil(t, buildFilterClause(nil))
}

func TestBuildFilterClauseEmptySlicesUnrestricted(t *testing.T) {
	filter := &model.SearchFilter{DocumentIDs: []string{}, FileTypes: []string{}}
	assert.Nil(t, buildFilterClause(filter))
}

func TestBuildFilterClauseDocumentIDs(t *testing.T) {
	filter := &model.SearchFilter{DocumentIDs: []string{"doc1", "doc2"}}
	clause := buildFilterClause(filter)
	require.NotNil(t, clause)

	boolClause := clause.(map[string]interface{})["bool"].(map[string]interface{})
	terms := boolClause["filter"].([]map[string]interface{})
	require.Len(t, terms, 1)
	assert.Equal(t, []string{"doc1", "doc2"},
		terms[0]["terms"].(map[string]interface{})["document_id"])
}

func TestBuildFilterClauseBothFields(t *testing.T) {
	filter := &model.SearchFilter{
		DocumentIDs: []string{"doc1"},
		FileTypes:   []string{"pdf", "txt"},
	}
	clause := buildFilterClause(filter)
	require.NotNil(t, clause)

	boolClause := clause.(map[string]interface{})["bool"].(map[string]interface{})
	terms := boolClause["filter"].([]map[string]interface{})
	require.Len(t, terms, 2)
	assert.Equal(t, []string{"doc1"},
		terms[0]["terms"].(map[string]interface{})["document_id"])
	assert.Equal(t, []string{"pdf", "txt"},
		terms[1]["terms"].(map[string]interface{})["file_type"])
}
